package beir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// readJSONL decodes one JSON value per non-blank line.
func readJSONL[T any](r io.Reader) ([]T, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	var out []T
	line := 0
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 {
				var v T
				if uerr := json.Unmarshal(raw, &v); uerr != nil {
					return nil, fmt.Errorf("line %d: %w", line, uerr)
				}
				out = append(out, v)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("read line %d: %w", line+1, err)
		}
	}
}

// writeJSONL encodes items one per line.
func writeJSONL[T any](w io.Writer, items []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return fmt.Errorf("encode item %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
