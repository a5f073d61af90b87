package beir

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
)

// QrelsHeader is the first line of a qrels TSV file.
var QrelsHeader = []string{"query-id", "corpus-id", "score"}

// ReadQrels parses a tab-separated qrels file. A first line starting with
// "query-id" (case-insensitive) is a header. Any other line must hold
// exactly three columns with an integer score.
func ReadQrels(r io.Reader) (dataset.Qrels, error) {
	br := bufio.NewReader(r)
	qrels := dataset.Qrels{}
	lineNo := 0
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			lineNo++
			if perr := parseQrelsLine(qrels, raw, lineNo); perr != nil {
				return nil, perr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return qrels, nil
			}
			return nil, fmt.Errorf("read qrels line %d: %w", lineNo+1, err)
		}
	}
}

func parseQrelsLine(qrels dataset.Qrels, raw string, lineNo int) error {
	if lineNo == 1 && strings.HasPrefix(strings.ToLower(raw), "query-id") {
		return nil
	}
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}

	cols := strings.Split(line, "\t")
	if len(cols) != 3 {
		return domain.NewQrelsLineError(lineNo, fmt.Sprintf("expected 3 columns, got %d", len(cols)))
	}
	score, err := strconv.Atoi(cols[2])
	if err != nil {
		return domain.NewQrelsLineError(lineNo, fmt.Sprintf("score %q is not an integer", cols[2]))
	}
	if score < 0 {
		return domain.NewQrelsLineError(lineNo, fmt.Sprintf("score %d is negative", score))
	}
	qrels.Add(cols[0], cols[1], score)
	return nil
}

// WriteQrels writes qrels as TSV with a header, ordered by query id then
// document id.
func WriteQrels(w io.Writer, qrels dataset.Qrels) error {
	return WriteQrelsOrdered(w, qrels, qrels.QueryIDs())
}

// WriteQrelsOrdered writes the judgments of queryIDs in the given order.
// Documents within a query are ordered by id.
func WriteQrelsOrdered(w io.Writer, qrels dataset.Qrels, queryIDs []string) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(QrelsHeader, "\t") + "\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, qid := range queryIDs {
		docs := qrels[qid]
		docIDs := make([]string, 0, len(docs))
		for id := range docs {
			docIDs = append(docIDs, id)
		}
		sort.Strings(docIDs)
		for _, did := range docIDs {
			if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\n", qid, did, docs[did]); err != nil {
				return fmt.Errorf("write qrel %s/%s: %w", qid, did, err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush qrels: %w", err)
	}
	return nil
}
