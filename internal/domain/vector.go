package domain

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"
)

var vectorTokenSeparator = regexp.MustCompile(`[,\s]+`)

// Coerce converts the vector encodings seen across the datastore and the provider into a
// plain []float32. It accepts numeric slices, pgvector values and textual forms such as
// "[0.1,0.2]", "{0.1,0.2}" or "0.1, 0.2". Tokens that do not parse to a finite number
// become 0. Unparseable or empty input yields an empty slice.
func Coerce(value any) []float32 {
	switch v := value.(type) {
	case nil:
		return []float32{}
	case []float32:
		return finite32(v)
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = toFinite32(f)
		}
		return out
	case []any:
		out := make([]float32, len(v))
		for i, item := range v {
			out[i] = anyToFloat32(item)
		}
		return out
	case pgvector.Vector:
		return finite32(v.Slice())
	case *pgvector.Vector:
		if v == nil {
			return []float32{}
		}
		return finite32(v.Slice())
	case []byte:
		return coerceText(string(v))
	case string:
		return coerceText(v)
	default:
		return []float32{}
	}
}

func coerceText(raw string) []float32 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return []float32{}
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		s = "[" + s[1:len(s)-1] + "]"
	}
	if !strings.HasPrefix(s, "[") && strings.Contains(s, ",") {
		s = "[" + s + "]"
	}

	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err == nil {
		if items, ok := parsed.([]any); ok {
			return Coerce(items)
		}
		if !strings.HasPrefix(s, "[") {
			return splitTokens(s)
		}
		return []float32{}
	}
	return splitTokens(s)
}

func splitTokens(s string) []float32 {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "["), "{")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "]"), "}")

	out := []float32{}
	for _, tok := range vectorTokenSeparator.Split(s, -1) {
		if tok == "" {
			continue
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			out = append(out, 0)
			continue
		}
		out = append(out, toFinite32(f))
	}
	return out
}

func anyToFloat32(item any) float32 {
	switch n := item.(type) {
	case float64:
		return toFinite32(n)
	case float32:
		return toFinite32(float64(n))
	case int:
		return float32(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return toFinite32(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return toFinite32(f)
	default:
		return 0
	}
}

func toFinite32(f float64) float32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	v := float32(f)
	if math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}

func finite32(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = toFinite32(float64(f))
	}
	return out
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Norm returns the Euclidean norm of a.
func Norm(a []float32) float64 {
	return math.Sqrt(Dot(a, a))
}

// Cosine returns the cosine similarity of a and b. It never fails: empty vectors,
// mismatched lengths, non-finite components and zero norms all score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	for i := range a {
		if !isFinite(float64(a[i])) || !isFinite(float64(b[i])) {
			return 0
		}
	}
	d := Dot(a, b)
	n := Norm(a) * Norm(b)
	if !isFinite(d) || !isFinite(n) || n == 0 {
		return 0
	}
	v := d / n
	if !isFinite(v) {
		return 0
	}
	return v
}

// Finite coerces a score to a finite number, mapping NaN and ±Inf to 0.
func Finite(f float64) float64 {
	if !isFinite(f) {
		return 0
	}
	return f
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FormatVector renders v in the bracketed text form accepted by the vector column type.
// The shortest float32 representation is used so Coerce(FormatVector(v)) returns v exactly.
func FormatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
