package domain

import "errors"

var (
	// ErrParse indicates malformed page, block or span structure in a source
	// document. It aborts that document's ingestion only.
	ErrParse = errors.New("malformed document structure")

	// ErrEmbedding indicates an upstream embedding failure. The insert batch
	// that triggered it is rejected as a whole.
	ErrEmbedding = errors.New("embedding failed")

	// ErrNotFound indicates a collection or point does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateInsert is reported as a warning when an insert adds chunks
	// that the collection already holds. The insert itself succeeds.
	ErrDuplicateInsert = errors.New("collection already contains some of the inserted chunks")

	// ErrInvalidInput indicates a malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown backend, embedder or file type.
	ErrUnsupportedType = errors.New("unsupported type")
)
