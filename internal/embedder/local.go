package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultLocalDimension is the vector length of the local embedder.
const DefaultLocalDimension = 384

// Local is a deterministic feature-hashing embedder. Identifiers are split
// on case and underscores so that "parseConfig" and "parse_config" share
// features. It needs no network and suits tests and offline use.
type Local struct {
	dim int
}

// NewLocal creates a local embedder with the given dimension.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = DefaultLocalDimension
	}
	return &Local{dim: dim}
}

func (l *Local) Model() string  { return "local-hash" }
func (l *Local) Dimension() int { return l.dim }

func (l *Local) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = l.vector(text)
	}
	return out, nil
}

func (l *Local) vector(text string) []float32 {
	v := make([]float32, l.dim)
	for _, tok := range tokens(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[int(sum%uint32(l.dim))] += sign
	}
	return Normalize(v)
}

// tokens lowercases words and also emits the camelCase and snake_case
// parts of identifiers.
func tokens(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	var out []string
	for _, w := range words {
		lower := strings.ToLower(w)
		out = append(out, lower)
		parts := splitIdentifier(w)
		if len(parts) > 1 {
			out = append(out, parts...)
		}
	}
	return out
}

func splitIdentifier(w string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(w)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}
