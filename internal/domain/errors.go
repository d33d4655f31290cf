package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the retrieval pipeline.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrZeroQueryVector   = errors.New("cannot process an empty or unembeddable query")
	ErrGeneration        = errors.New("answer generation failed")
	ErrCredential        = errors.New("invalid or missing API credential")
	ErrNoDocument        = errors.New("no document loaded")
	ErrMatrixMismatch    = errors.New("passages and embedding matrix length mismatch")
	ErrEmbedding         = errors.New("embedding failed")
)

// UnsupportedFormatError is returned when an uploaded file's extension is not
// one the extractors know.
type UnsupportedFormatError struct {
	Name string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: %q (file %s)", ErrUnsupportedFormat, e.Ext, e.Name)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// EmbeddingError records one failed embedding call. It is logged and reduced
// to a zero vector, never returned from a batch.
type EmbeddingError struct {
	Index   int
	Purpose Purpose
	Err     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s item %d: %v", e.Purpose, e.Index, e.Err)
}

func (e *EmbeddingError) Unwrap() []error { return []error{ErrEmbedding, e.Err} }

// GenerationError wraps a provider failure surfaced while streaming an answer.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrGeneration, e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// CredentialError reports a missing or rejected API credential.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCredential, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCredential, e.Reason)
}

func (e *CredentialError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCredential, e.Err}
	}
	return []error{ErrCredential}
}
