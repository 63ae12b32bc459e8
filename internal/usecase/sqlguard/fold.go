package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	setPrefixRe   = regexp.MustCompile(`(?i)^\s*SET\b`)
	setKeywordRe  = regexp.MustCompile(`(?i)^\s*SET\s+(?:(?:LOCAL|SESSION)\s+)?`)
	setToRe       = regexp.MustCompile(`(?i)\s+TO\s+`)
	selectStartRe = regexp.MustCompile(`(?i)^(select|with)\b`)
)

type setting struct {
	name  string
	value string
}

// FoldSetStatements rewrites leading SET statements into set_config calls in a
// sub-select cross-joined with the query, so the result is one statement:
//
//	SELECT t.* FROM (SELECT set_config('ivfflat.probes', '10', true) as __set0) __cfg, (<query>) t
//
// SQL without leading SETs is returned unchanged.
func FoldSetStatements(sql string) (string, error) {
	var settings []setting
	rest := sql
	for setPrefixRe.MatchString(rest) {
		idx := strings.Index(rest, ";")
		if idx == -1 {
			break
		}
		stmt := rest[:idx]
		rest = rest[idx+1:]

		body := strings.TrimSpace(setKeywordRe.ReplaceAllString(stmt, ""))
		name, value, ok := splitSetting(body)
		if !ok {
			continue
		}
		settings = append(settings, setting{name: name, value: value})
	}
	if len(settings) == 0 {
		if setPrefixRe.MatchString(rest) {
			return "", errors.New("unterminated SET statement")
		}
		return sql, nil
	}

	remainder := strings.TrimSpace(rest)
	if !selectStartRe.MatchString(remainder) {
		return "", errors.New("only a SELECT is allowed after SET statements")
	}

	cfg := make([]string, len(settings))
	for i, s := range settings {
		cfg[i] = fmt.Sprintf("set_config('%s', '%s', true) as __set%d", quote(s.name), quote(s.value), i)
	}
	return fmt.Sprintf("SELECT t.* FROM (SELECT %s) __cfg, (%s) t", strings.Join(cfg, ", "), remainder), nil
}

func splitSetting(body string) (string, string, bool) {
	var name, value string
	if eq := strings.Index(body, "="); eq != -1 {
		name, value = body[:eq], body[eq+1:]
	} else if loc := setToRe.FindStringIndex(body); loc != nil {
		name, value = body[:loc[0]], body[loc[1]:]
	} else {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if len(value) >= 2 && (value[0] == '\'' && value[len(value)-1] == '\'' || value[0] == '"' && value[len(value)-1] == '"') {
		value = value[1 : len(value)-1]
	}
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
