// Package evalstore persists evaluation reports on disk.
package evalstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

const (
	reportsDir   = "eval_results"
	reportSuffix = "_eval.json"
	overallFile  = "overall_results.jsonl"
)

// Store writes MRR@k reports under <evalDir>/eval_results and retriever
// summaries under resultsDir.
type Store struct {
	evalDir    string
	resultsDir string
}

// New creates a report store.
func New(evalDir, resultsDir string) *Store {
	return &Store{evalDir: evalDir, resultsDir: resultsDir}
}

// ReportPath returns <evalDir>/eval_results/<dataset>_eval.json.
func (s *Store) ReportPath(datasetName string) string {
	return filepath.Join(s.evalDir, reportsDir, datasetName+reportSuffix)
}

// SaveReport writes the MRR@k report of a dataset as indented JSON.
func (s *Store) SaveReport(datasetName string, report mrr.Report) (string, error) {
	if err := os.MkdirAll(filepath.Join(s.evalDir, reportsDir), 0o750); err != nil {
		return "", fmt.Errorf("mkdir eval results: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	path := s.ReportPath(datasetName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// LoadReport reads the report of a dataset.
func (s *Store) LoadReport(datasetName string) (mrr.Report, error) {
	if !validName(datasetName) {
		return mrr.Report{}, fmt.Errorf("%q: %w", datasetName, domain.ErrEvaluationNotFound)
	}
	data, err := os.ReadFile(filepath.Clean(s.ReportPath(datasetName)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mrr.Report{}, fmt.Errorf("%s: %w", datasetName, domain.ErrEvaluationNotFound)
		}
		return mrr.Report{}, fmt.Errorf("read report: %w", err)
	}
	var report mrr.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return mrr.Report{}, fmt.Errorf("parse report %s: %w", datasetName, err)
	}
	return report, nil
}

// ListReports returns the dataset names that have a report, sorted.
func (s *Store) ListReports() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.evalDir, reportsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), reportSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), reportSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Summary is one line of overall_results.jsonl.
type Summary struct {
	Language string  `json:"language"`
	MRR      float64 `json:"mrr"`
}

// AppendSummary appends a retriever summary line to overall_results.jsonl.
func (s *Store) AppendSummary(sum Summary) error {
	if err := os.MkdirAll(s.resultsDir, 0o750); err != nil {
		return fmt.Errorf("mkdir results: %w", err)
	}
	line, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	path := filepath.Join(s.resultsDir, overallFile)
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", overallFile, err)
	}
	_, err = f.Write(append(line, '\n'))
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("append summary: %w", err)
	}
	return nil
}

// Summaries reads every line of overall_results.jsonl.
func (s *Store) Summaries() ([]Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.resultsDir, overallFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read summaries: %w", err)
	}
	var out []Summary
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var sum Summary
		if err := json.Unmarshal([]byte(line), &sum); err != nil {
			return nil, fmt.Errorf("summary line %d: %w", i+1, err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// validName rejects names that would escape the reports directory.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}
