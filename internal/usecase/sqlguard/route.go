package sqlguard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"writing-comparator/internal/domain"
)

// QueryEmbeddingPlaceholder stands for the question's embedding in generated SQL.
const QueryEmbeddingPlaceholder = ":query_embedding"

const (
	maxProcedureLimit = 100
	procedureName     = "search_passages_by_embedding"
)

// Route names how a statement reaches the datastore.
type Route string

const (
	// RouteDirect executes the sanitized statement as-is.
	RouteDirect Route = "direct"
	// RouteProcedure replaces the statement with a similarity-procedure call.
	RouteProcedure Route = "procedure"
	// RouteInlineVector substitutes the placeholder with a vector literal.
	RouteInlineVector Route = "inline_vector"
)

var (
	placeholderRe    = regexp.MustCompile(`(?i):query_embedding\b`)
	passageTableRe   = regexp.MustCompile(`(?i)\bembedding_passage\b`)
	distanceRe       = regexp.MustCompile(`(?i)(?:<=>\s*:query_embedding\b|:query_embedding\b(?:\s*::\s*vector(?:\(\d+\))?)?\s*<=>)`)
	procedureCallRe  = regexp.MustCompile(`(?i)\bsearch_passages_by_embedding\s*\(`)
	limitRe          = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)
	limitKeywordRe   = regexp.MustCompile(`(?i)\blimit\b`)
	offsetRe         = regexp.MustCompile(`(?i)\boffset\s+(\d+)`)
	whereRe          = regexp.MustCompile(`(?is)\bwhere\b(.*)$`)
	themeFilterRe    = regexp.MustCompile(`(?i)\b(?:[a-z_][a-z0-9_]*\.)?(?:name|theme_name)\s*(=|i?like)\s*'((?:[^']|'')*)'`)
	themeMentionRe   = regexp.MustCompile(`(?i)\b(?:theme|theme_name)\b`)
	documentFilterRe = regexp.MustCompile(`(?i)\b(?:[a-z_][a-z0-9_]*\.)?document_id\s*=\s*(\d+)`)
	documentRefRe    = regexp.MustCompile(`(?i)\bdocument_id\s*(?:=|in\b)`)
)

// Plan is the chosen execution of a statement.
type Plan struct {
	Route Route `json:"route"`
	// SQL is the statement to execute for the direct and inline routes.
	SQL string `json:"-"`
	// ExecutedSQL describes what actually ran, with a comment when a procedure replaced SQL.
	ExecutedSQL string `json:"-"`
	// Query holds the procedure arguments for RouteProcedure.
	Query domain.SimilarityQuery `json:"-"`
	// Degraded lists filters the heuristics saw in the SQL but could not extract.
	Degraded []string `json:"degraded,omitempty"`
}

// HasPlaceholder reports whether sql references the question embedding.
func HasPlaceholder(sql string) bool {
	return placeholderRe.MatchString(sql)
}

// LooksLikePassageSearch reports whether sql ranks passages by distance to the
// question embedding, or calls the similarity procedure itself.
func LooksLikePassageSearch(sql string) bool {
	if procedureCallRe.MatchString(sql) {
		return true
	}
	return passageTableRe.MatchString(sql) && distanceRe.MatchString(sql)
}

// PlanExecution picks the route for a sanitized, rewritten statement. vector is the
// question embedding, or nil when embedding failed. limit is used when the SQL has
// no parsable LIMIT.
func PlanExecution(sql string, vector []float32, limit int) Plan {
	if !HasPlaceholder(sql) || len(vector) == 0 {
		return Plan{Route: RouteDirect, SQL: sql, ExecutedSQL: sql}
	}

	if LooksLikePassageSearch(sql) {
		return planProcedure(sql, vector, limit)
	}

	literal := "'" + domain.FormatVector(vector) + "'::vector"
	inlined := placeholderRe.ReplaceAllLiteralString(sql, literal)
	return Plan{Route: RouteInlineVector, SQL: inlined, ExecutedSQL: inlined}
}

func planProcedure(sql string, vector []float32, fallbackLimit int) Plan {
	var degraded []string

	limit, ok := ExtractLimit(sql)
	if !ok {
		if limitKeywordRe.MatchString(sql) {
			degraded = append(degraded, "limit")
		}
		limit = fallbackLimit
	}
	limit = clampLimit(limit)

	offset := 0
	if m := offsetRe.FindStringSubmatch(sql); m != nil {
		offset, _ = strconv.Atoi(m[1])
	}

	where := whereClause(sql)

	theme, ok := ExtractThemeFilter(where)
	if !ok && themeMentionRe.MatchString(where) {
		degraded = append(degraded, "theme_name")
	}
	docID, docOK := ExtractDocumentFilter(where)
	if !docOK && documentRefRe.MatchString(where) {
		degraded = append(degraded, "document_id")
	}

	q := domain.SimilarityQuery{Vector: vector, Limit: limit, Offset: offset}
	if ok {
		q.ThemeName = &theme
	}
	if docOK {
		q.DocumentID = &docID
	}

	return Plan{
		Route:       RouteProcedure,
		ExecutedSQL: describeProcedureCall(sql, q),
		Query:       q,
		Degraded:    degraded,
	}
}

func describeProcedureCall(original string, q domain.SimilarityQuery) string {
	theme := "NULL"
	if q.ThemeName != nil {
		theme = "'" + quote(*q.ThemeName) + "'"
	}
	doc := "NULL"
	if q.DocumentID != nil {
		doc = strconv.FormatInt(*q.DocumentID, 10)
	}
	return fmt.Sprintf("-- generated SQL replaced by a %s call; original:\n-- %s\nSELECT * FROM %s(:query_embedding, %d, %d, %s, %s)",
		procedureName, strings.ReplaceAll(original, "\n", "\n-- "), procedureName, q.Limit, q.Offset, theme, doc)
}

// ExtractLimit returns the last LIMIT value in sql.
func ExtractLimit(sql string) (int, bool) {
	matches := limitRe.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ExtractThemeFilter finds a theme-name comparison. Equality becomes an exact
// case-insensitive pattern; LIKE patterns keep their wildcards.
func ExtractThemeFilter(where string) (string, bool) {
	m := themeFilterRe.FindStringSubmatch(where)
	if m == nil {
		return "", false
	}
	value := strings.ReplaceAll(m[2], "''", "'")
	if value == "" {
		return "", false
	}
	return value, true
}

// ExtractDocumentFilter finds a document_id equality.
func ExtractDocumentFilter(where string) (int64, bool) {
	m := documentFilterRe.FindStringSubmatch(where)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func whereClause(sql string) string {
	m := whereRe.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	return m[1]
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 10
	case n > maxProcedureLimit:
		return maxProcedureLimit
	default:
		return n
	}
}
