// Package csn reads raw CodeSearchNet examples, either from the GraphCodeBERT
// codesearch jsonl release or from HuggingFace parquet shards.
package csn

import (
	"context"
	"strings"
)

// Example is one function with its docstring.
type Example struct {
	URL   string
	Code  string
	NL    string
	Title string
}

// Source yields the codebase and the query examples of one language.
type Source interface {
	Examples(ctx context.Context, lang string) (codebase, queries []Example, err error)
}

// dedupByURL keeps the first position of every URL and the last value seen for it.
func dedupByURL(in []Example) []Example {
	pos := make(map[string]int, len(in))
	out := make([]Example, 0, len(in))
	for _, ex := range in {
		if i, ok := pos[ex.URL]; ok {
			out[i] = ex
			continue
		}
		pos[ex.URL] = len(out)
		out = append(out, ex)
	}
	return out
}

func joinTokens(tokens []string, fallback string) string {
	if len(tokens) == 0 {
		return fallback
	}
	return strings.Join(tokens, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
