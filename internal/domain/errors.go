package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedQrels signals a qrels line that cannot be parsed.
	ErrMalformedQrels = errors.New("malformed qrels")
	// ErrMalformedResults signals a reranker results file with an unexpected shape.
	ErrMalformedResults = errors.New("malformed results")
	// ErrResultsNotFound signals a missing reranker results file.
	ErrResultsNotFound = errors.New("results not found")
	// ErrDatasetNotFound signals a missing dataset directory or file.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrEvaluationNotFound signals a missing evaluation report.
	ErrEvaluationNotFound = errors.New("evaluation not found")
	// ErrShapeMismatch signals a score matrix that does not match its id lists.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrVectorDimMismatch signals embeddings of different dimensions.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownQueryURL signals a query whose source URL is absent from the codebase.
	ErrUnknownQueryURL = errors.New("query url not in codebase")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrInvalidCutoff signals a non-positive MRR cutoff.
	ErrInvalidCutoff = errors.New("invalid cutoff")
	// ErrCommandFailed signals an external command that exited non-zero.
	ErrCommandFailed = errors.New("command failed")
)

// QrelsLineError wraps ErrMalformedQrels with the offending line.
type QrelsLineError struct {
	Line   int
	Reason string
}

func (e *QrelsLineError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", ErrMalformedQrels.Error(), e.Line, e.Reason)
}

func (e *QrelsLineError) Unwrap() error { return ErrMalformedQrels }

// NewQrelsLineError creates a qrels parse error for a 1-based line number.
func NewQrelsLineError(line int, reason string) error {
	return &QrelsLineError{Line: line, Reason: reason}
}
