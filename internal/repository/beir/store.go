// Package beir reads and writes datasets in the BEIR on-disk layout:
//
//	<dir>/corpus.jsonl
//	<dir>/queries.jsonl
//	<dir>/qrels/<split>.tsv
package beir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
)

const (
	corpusFile  = "corpus.jsonl"
	queriesFile = "queries.jsonl"
	qrelsDir    = "qrels"
)

// QrelsPath returns the qrels file of a split inside a dataset directory.
func QrelsPath(dir, split string) string {
	return filepath.Join(dir, qrelsDir, split+".tsv")
}

// Store loads and saves BEIR datasets under a root directory.
type Store struct {
	logger *zap.Logger
}

// New creates a dataset store.
func New(logger *zap.Logger) *Store {
	return &Store{logger: logger}
}

// Load reads the dataset at dir for the given split. Like the BEIR loader,
// only queries that have judgments in the split are kept.
func (s *Store) Load(dir, split string) (dataset.Dataset, error) {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return dataset.Dataset{}, fmt.Errorf("%s: %w", dir, domain.ErrDatasetNotFound)
	}

	corpus, err := readFile(filepath.Join(dir, corpusFile), readJSONL[dataset.Document])
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("load corpus: %w", err)
	}
	queries, err := readFile(filepath.Join(dir, queriesFile), readJSONL[dataset.Query])
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("load queries: %w", err)
	}
	qrels, err := readFile(QrelsPath(dir, split), ReadQrels)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("load qrels: %w", err)
	}

	judged := queries[:0]
	for _, q := range queries {
		if qrels.Has(q.ID) {
			judged = append(judged, q)
		}
	}

	ds := dataset.Dataset{
		Name:    filepath.Base(dir),
		Corpus:  corpus,
		Queries: judged,
		Qrels:   qrels,
	}
	s.logger.Info("Loaded dataset",
		zap.String("dataset", ds.Name),
		zap.String("split", split),
		zap.Int("documents", len(ds.Corpus)),
		zap.Int("queries", len(ds.Queries)),
		zap.Int("qrels", qrels.Pairs()),
	)
	return ds, nil
}

// Save writes ds into dir, creating directories as needed. Qrels rows follow
// query order.
func (s *Store) Save(dir, split string, ds dataset.Dataset) error {
	if err := os.MkdirAll(filepath.Join(dir, qrelsDir), 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	corpus := withMetadata(ds.Corpus, func(d *dataset.Document) *map[string]any { return &d.Metadata })
	if err := writeFile(filepath.Join(dir, corpusFile), func(w io.Writer) error {
		return writeJSONL(w, corpus)
	}); err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}

	queries := withMetadata(ds.Queries, func(q *dataset.Query) *map[string]any { return &q.Metadata })
	if err := writeFile(filepath.Join(dir, queriesFile), func(w io.Writer) error {
		return writeJSONL(w, queries)
	}); err != nil {
		return fmt.Errorf("save queries: %w", err)
	}

	if err := writeFile(QrelsPath(dir, split), func(w io.Writer) error {
		return WriteQrelsOrdered(w, ds.Qrels, ds.QueryIDs())
	}); err != nil {
		return fmt.Errorf("save qrels: %w", err)
	}

	s.logger.Info("Saved dataset",
		zap.String("dir", dir),
		zap.Int("documents", len(ds.Corpus)),
		zap.Int("queries", len(ds.Queries)),
	)
	return nil
}

// LoadQrels reads a standalone qrels file.
func (s *Store) LoadQrels(path string) (dataset.Qrels, error) {
	qrels, err := readFile(path, ReadQrels)
	if err != nil {
		return nil, fmt.Errorf("load qrels: %w", err)
	}
	return qrels, nil
}

// LoadResults reads a reranker results JSON file. A missing file yields
// domain.ErrResultsNotFound.
func (s *Store) LoadResults(path string) (*dataset.Results, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrResultsNotFound)
		}
		return nil, fmt.Errorf("read results: %w", err)
	}
	res := dataset.NewResults()
	if err := json.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("parse results %s: %w", path, err)
	}
	return res, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zero, fmt.Errorf("%s: %w", path, domain.ErrDatasetNotFound)
		}
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	tmp := filepath.Clean(path) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}
	err = write(f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// withMetadata copies items, replacing nil metadata with an empty object so
// it encodes as {} rather than null.
func withMetadata[T any](items []T, field func(*T) *map[string]any) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := range out {
		if m := field(&out[i]); *m == nil {
			*m = map[string]any{}
		}
	}
	return out
}
