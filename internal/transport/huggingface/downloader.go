// Package huggingface downloads dataset parquet shards from the HuggingFace Hub.
// Interrupted downloads resume through HTTP Range requests.
package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultAPIBase is the Hub datasets API root.
const DefaultAPIBase = "https://huggingface.co/api/datasets"

// Config holds downloader settings.
type Config struct {
	APIBase string
	Dataset string // e.g. code-search-net/code_search_net
	Split   string
	Token   string
	DataDir string
	// MaxFiles limits shards per language; 0 downloads all.
	MaxFiles int
	Logger   *zap.Logger
	// DownloadBytes, when set, counts bytes received.
	DownloadBytes prometheus.Counter
}

// Downloader fetches parquet shards into DataDir/<config>/.
type Downloader struct {
	apiBase  string
	dataset  string
	split    string
	token    string
	dataDir  string
	maxFiles int
	client   *http.Client
	logger   *zap.Logger
	bytes    prometheus.Counter
}

// New creates a downloader.
func New(cfg Config) *Downloader {
	d := &Downloader{
		apiBase:  strings.TrimSuffix(cfg.APIBase, "/"),
		dataset:  cfg.Dataset,
		split:    cfg.Split,
		token:    cfg.Token,
		dataDir:  cfg.DataDir,
		maxFiles: cfg.MaxFiles,
		client:   &http.Client{Timeout: 30 * time.Minute},
		logger:   cfg.Logger,
		bytes:    cfg.DownloadBytes,
	}
	if d.apiBase == "" {
		d.apiBase = DefaultAPIBase
	}
	if d.split == "" {
		d.split = "test"
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// ParquetFile is one shard listed by the Hub parquet API.
type ParquetFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// FetchShards downloads the shards of one dataset config (a language for
// code_search_net) and returns their local paths in listing order.
// Files already present with the listed size are skipped.
func (d *Downloader) FetchShards(ctx context.Context, config string) ([]string, error) {
	outDir := filepath.Join(d.dataDir, config)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", outDir, err)
	}

	files, err := d.ListParquetFiles(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("list parquet files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files for %s/%s/%s", d.dataset, config, d.split)
	}
	if d.maxFiles > 0 && len(files) > d.maxFiles {
		files = files[:d.maxFiles]
	}

	d.logger.Info("Downloading parquet shards",
		zap.String("config", config), zap.Int("files", len(files)), zap.String("dir", outDir))

	paths := make([]string, 0, len(files))
	for i, info := range files {
		name := fmt.Sprintf("%s-%05d.parquet", d.split, i)
		outPath := filepath.Join(outDir, name)
		paths = append(paths, outPath)

		if st, err := os.Stat(outPath); err == nil && (info.Size == 0 || st.Size() == info.Size) {
			d.logger.Debug("Shard already downloaded", zap.String("file", name), zap.Int64("bytes", st.Size()))
			continue
		}

		if err := d.downloadFile(ctx, info.URL, outPath); err != nil {
			return nil, fmt.Errorf("download %s: %w", name, err)
		}
	}
	return paths, nil
}

// ListParquetFiles queries <api>/<dataset>/parquet/<config>/<split>.
// The Hub answers with either a list of URLs or a list of objects.
func (d *Downloader) ListParquetFiles(ctx context.Context, config string) ([]ParquetFile, error) {
	url := fmt.Sprintf("%s/%s/parquet/%s/%s", d.apiBase, d.dataset, config, d.split)

	resp, err := d.get(ctx, url, 0)
	if err != nil {
		return nil, fmt.Errorf("HF API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HF API: status %d: %s", resp.StatusCode, string(body))
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse HF response: %w", err)
	}

	var out []ParquetFile
	for _, item := range raw {
		var f ParquetFile
		var s string
		if json.Unmarshal(item, &s) == nil {
			f.URL = s
		} else if err := json.Unmarshal(item, &f); err != nil {
			return nil, fmt.Errorf("parse HF entry: %w", err)
		}
		if strings.HasSuffix(f.Filename, ".parquet") || strings.HasSuffix(f.URL, ".parquet") {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *Downloader) get(ctx context.Context, url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	return resp, nil
}

// downloadFile writes to <out>.tmp, resuming from its current size, then renames.
func (d *Downloader) downloadFile(ctx context.Context, url, outPath string) error {
	cleanPath := filepath.Clean(outPath)
	tmpPath := cleanPath + ".tmp"

	var offset int64
	if st, err := os.Stat(tmpPath); err == nil {
		offset = st.Size()
	}
	if offset > 0 {
		d.logger.Info("Resuming download", zap.String("file", filepath.Base(outPath)), zap.Int64("offset", offset))
	}

	resp, err := d.get(ctx, url, offset)
	if err != nil {
		return fmt.Errorf("download request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		offset = 0
	}

	f, err := os.OpenFile(tmpPath, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}

	written, err := io.Copy(f, &countingReader{reader: resp.Body, counter: d.bytes})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	d.logger.Info("Downloaded shard",
		zap.String("file", filepath.Base(outPath)), zap.Int64("bytes", offset+written))

	if err := os.Rename(tmpPath, cleanPath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// countingReader feeds the download bytes counter.
type countingReader struct {
	reader  io.Reader
	counter prometheus.Counter
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	if cr.counter != nil && n > 0 {
		cr.counter.Add(float64(n))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read: %w", err)
	}
	return n, err //nolint:wrapcheck // io.EOF must reach io.Copy unwrapped
}
