// Package resultset merges duplicate query rows before they are summarized.
package resultset

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"

	"writing-comparator/internal/domain"
)

const (
	DefaultMaxThemes  = 12
	DefaultMaxRows    = 40
	DefaultMaxContent = 800

	fingerprintPrefix = 64
)

// Options bounds the merged set.
type Options struct {
	MaxThemes  int
	MaxRows    int
	MaxContent int
}

// DefaultOptions returns the caps used for summarization input.
func DefaultOptions() Options {
	return Options{MaxThemes: DefaultMaxThemes, MaxRows: DefaultMaxRows, MaxContent: DefaultMaxContent}
}

// Result is a merged, capped row set.
type Result struct {
	Rows   []domain.Row
	Before int
	After  int
}

type entry struct {
	row        domain.Row
	similarity float64
	themes     []string
	order      int
}

// Dedupe merges rows that share a passage id (or id), or failing that a content
// fingerprint. A duplicate keeps the higher similarity and fills fields the first row
// lacked. Theme names of merged rows are collected into theme_names. The result is
// sorted by similarity descending, capped, and long content is truncated.
// After counts distinct rows before the row cap is applied.
func Dedupe(rows []domain.Row, opts Options) Result {
	if opts.MaxThemes <= 0 {
		opts.MaxThemes = DefaultMaxThemes
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent = DefaultMaxContent
	}

	index := make(map[string]*entry, len(rows))
	var entries []*entry
	for i, row := range rows {
		key := rowKey(row, i)
		sim, _ := similarity(row)

		e, ok := index[key]
		if !ok {
			e = &entry{row: cloneRow(row), similarity: sim, order: len(entries)}
			index[key] = e
			entries = append(entries, e)
			e.addTheme(row, opts.MaxThemes)
			continue
		}

		if sim > e.similarity {
			e.similarity = sim
			if _, has := row["similarity"]; has {
				e.row["similarity"] = row["similarity"]
			}
		}
		for k, v := range row {
			if existing, has := e.row[k]; !has || existing == nil {
				e.row[k] = v
			}
		}
		e.addTheme(row, opts.MaxThemes)
	}

	slices.SortStableFunc(entries, func(a, b *entry) int {
		if c := cmp.Compare(b.similarity, a.similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})

	after := len(entries)
	if len(entries) > opts.MaxRows {
		entries = entries[:opts.MaxRows]
	}

	out := make([]domain.Row, len(entries))
	for i, e := range entries {
		if len(e.themes) > 0 {
			e.row["theme_names"] = e.themes
		}
		if s, ok := e.row["content"].(string); ok {
			e.row["content"] = truncateRunes(s, opts.MaxContent)
		}
		out[i] = e.row
	}
	return Result{Rows: out, Before: len(rows), After: after}
}

func (e *entry) addTheme(row domain.Row, limit int) {
	name, ok := row["theme_name"].(string)
	if !ok || name == "" || len(e.themes) >= limit || slices.Contains(e.themes, name) {
		return
	}
	e.themes = append(e.themes, name)
}

func rowKey(row domain.Row, position int) string {
	for _, field := range []string{"passage_id", "id"} {
		if v, ok := row[field]; ok && v != nil {
			return fmt.Sprintf("%s:%v", field, v)
		}
	}
	if content, ok := row["content"].(string); ok && content != "" {
		runes := []rune(content)
		prefix := string(runes[:min(len(runes), fingerprintPrefix)])
		return fmt.Sprintf("content:%s|%d", prefix, len(runes))
	}
	return fmt.Sprintf("row:%d", position)
}

// similarity reads the row's similarity (or score) column. Rows without one sort last.
func similarity(row domain.Row) (float64, bool) {
	for _, field := range []string{"similarity", "score"} {
		if f, ok := toFloat(row[field]); ok {
			return f, true
		}
	}
	return math.Inf(-1), false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func cloneRow(row domain.Row) domain.Row {
	out := make(domain.Row, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
