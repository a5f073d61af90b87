package csn

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
)

const (
	codebaseFile = "codebase.jsonl"
	queriesFile  = "test.jsonl"
)

// graphCodeBERTLine is one line of the GraphCodeBERT codesearch jsonl files.
type graphCodeBERTLine struct {
	URL             string   `json:"url"`
	Code            string   `json:"code"`
	OriginalString  string   `json:"original_string"`
	Docstring       string   `json:"docstring"`
	DocstringTokens []string `json:"docstring_tokens"`
	FuncName        string   `json:"func_name"`
}

func (l graphCodeBERTLine) example() Example {
	return Example{
		URL:   l.URL,
		Code:  firstNonEmpty(l.Code, l.OriginalString),
		NL:    joinTokens(l.DocstringTokens, l.Docstring),
		Title: l.FuncName,
	}
}

// GraphCodeBERT reads <dir>/<lang>/codebase.jsonl and <dir>/<lang>/test.jsonl.
type GraphCodeBERT struct {
	dir    string
	logger *zap.Logger
}

// NewGraphCodeBERT creates a source rooted at the extracted dataset directory.
func NewGraphCodeBERT(dir string, logger *zap.Logger) *GraphCodeBERT {
	return &GraphCodeBERT{dir: dir, logger: logger}
}

// Examples implements Source.
func (g *GraphCodeBERT) Examples(_ context.Context, lang string) (codebase, queries []Example, err error) {
	langDir := filepath.Join(g.dir, lang)

	codebase, err = readGraphCodeBERTFile(filepath.Join(langDir, codebaseFile))
	if err != nil {
		return nil, nil, err
	}
	queries, err = readGraphCodeBERTFile(filepath.Join(langDir, queriesFile))
	if err != nil {
		return nil, nil, err
	}

	g.logger.Debug("Read GraphCodeBERT files",
		zap.String("language", lang),
		zap.Int("codebase", len(codebase)), zap.Int("queries", len(queries)))
	return codebase, queries, nil
}

func readGraphCodeBERTFile(path string) ([]Example, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrDatasetNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	examples, err := ReadGraphCodeBERT(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return examples, nil
}

// ReadGraphCodeBERT parses GraphCodeBERT jsonl. Duplicate URLs collapse
// to one example at the first position.
func ReadGraphCodeBERT(r io.Reader) ([]Example, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	var out []Example
	for lineNo := 1; ; lineNo++ {
		raw, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			var line graphCodeBERTLine
			if jerr := json.Unmarshal(raw, &line); jerr != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, jerr)
			}
			if line.URL == "" {
				return nil, fmt.Errorf("line %d: missing url", lineNo)
			}
			out = append(out, line.example())
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read line %d: %w", lineNo, err)
		}
	}
	return dedupByURL(out), nil
}
