package csn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

// ShardFetcher makes the parquet shards of one language available locally.
type ShardFetcher interface {
	FetchShards(ctx context.Context, lang string) ([]string, error)
}

// Parquet reads HuggingFace code_search_net shards. The test split serves
// as both codebase and queries.
type Parquet struct {
	fetcher ShardFetcher
	logger  *zap.Logger
}

// NewParquet creates a parquet-backed source.
func NewParquet(fetcher ShardFetcher, logger *zap.Logger) *Parquet {
	return &Parquet{fetcher: fetcher, logger: logger}
}

// Examples implements Source.
func (p *Parquet) Examples(ctx context.Context, lang string) (codebase, queries []Example, err error) {
	paths, err := p.fetcher.FetchShards(ctx, lang)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch shards: %w", err)
	}

	var all []Example
	for _, path := range paths {
		ex, err := ReadParquetFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		all = append(all, ex...)
	}
	all = dedupByURL(all)

	p.logger.Debug("Read parquet shards",
		zap.String("language", lang), zap.Int("shards", len(paths)), zap.Int("examples", len(all)))
	return all, all, nil
}

// csnColumns holds leaf column indices resolved by name.
type csnColumns struct {
	url       int
	code      int
	doc       int
	docTokens int // list column, leaf index
	funcName  int
}

func resolveColumns(pf *parquet.File) (csnColumns, error) {
	cols := csnColumns{url: -1, code: -1, doc: -1, docTokens: -1, funcName: -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case "func_code_url":
			cols.url = i
		case "func_code_string":
			cols.code = i
		case "func_documentation_string":
			cols.doc = i
		case "func_documentation_tokens":
			cols.docTokens = i
		case "func_name":
			cols.funcName = i
		}
	}
	if cols.url < 0 || cols.code < 0 {
		return cols, errors.New("parquet schema lacks func_code_url or func_code_string")
	}
	return cols, nil
}

// ReadParquetFile reads every row of a code_search_net parquet file.
func ReadParquetFile(path string) ([]Example, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return readRows(pf)
}

func readRows(pf *parquet.File) ([]Example, error) {
	cols, err := resolveColumns(pf)
	if err != nil {
		return nil, err
	}

	out := make([]Example, 0, pf.NumRows())
	buf := make([]parquet.Row, 512)
	for _, rg := range pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		for {
			n, readErr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				out = append(out, rowToExample(buf[i], cols))
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return nil, fmt.Errorf("read rows: %w", readErr)
			}
		}
	}
	return out, nil
}

func rowToExample(row parquet.Row, cols csnColumns) Example {
	var ex Example
	var doc string
	var tokens []string

	for _, v := range row {
		if v.IsNull() {
			continue
		}
		switch v.Column() {
		case cols.url:
			ex.URL = v.String()
		case cols.code:
			ex.Code = v.String()
		case cols.doc:
			doc = v.String()
		case cols.docTokens:
			tokens = append(tokens, v.String())
		case cols.funcName:
			ex.Title = v.String()
		}
	}

	ex.NL = joinTokens(tokens, doc)
	return ex
}
