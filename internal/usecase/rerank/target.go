package rerank

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	codeDatasetsDir = "code_datasets"
	csnPrefix       = "csn_"
	sweBenchPrefix  = "swe-bench-lite-function_"
	dataType        = "codedataset"
	rerankType      = "code"

	// All selects every csn_* dataset under code_datasets.
	All = "all"
)

// Prompt types passed to the reranker.
const (
	PromptDocstring   = "docstring"
	PromptGitHubIssue = "github_issue"
)

// Target is one dataset to rerank.
type Target struct {
	Name string
	// Path is the BEIR dataset directory.
	Path string
	// DataDir is the parent passed as --data_dir.
	DataDir    string
	PromptType string
	// InstanceID is the SWE-bench instance, empty for CSN.
	InstanceID string
}

// QrelsPath returns <path>/qrels/test.tsv.
func (t Target) QrelsPath() string {
	return filepath.Join(t.Path, "qrels", "test.tsv")
}

// Discover lists rerank targets: the selected csn_* datasets under
// <datasetDir>/code_datasets (or all of them), then every
// swe-bench-lite-function_* directory under datasetDir. Names that are not
// directories are skipped.
func Discover(datasetDir string, selected []string) ([]Target, error) {
	var targets []Target

	codeDir := filepath.Join(datasetDir, codeDatasetsDir)
	if isDir(codeDir) {
		names := selected
		if slices.Contains(selected, All) {
			var err error
			if names, err = listDirs(codeDir, csnPrefix); err != nil {
				return nil, err
			}
		}
		for _, name := range names {
			if !strings.HasPrefix(name, csnPrefix) {
				continue
			}
			path := filepath.Join(codeDir, name)
			if !isDir(path) {
				continue
			}
			targets = append(targets, Target{
				Name:       name,
				Path:       path,
				DataDir:    codeDir,
				PromptType: PromptDocstring,
			})
		}
	}

	if isDir(datasetDir) {
		names, err := listDirs(datasetDir, sweBenchPrefix)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			targets = append(targets, Target{
				Name:       name,
				Path:       filepath.Join(datasetDir, name),
				DataDir:    datasetDir,
				PromptType: PromptGitHubIssue,
				InstanceID: name[strings.LastIndex(name, "_")+1:],
			})
		}
	}

	return targets, nil
}

func listDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
