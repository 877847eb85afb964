package export

import "errors"

var (
	// ErrDocumentRepositoryRequired indicates a nil document repository.
	ErrDocumentRepositoryRequired = errors.New("document repository is required")
	// ErrChunkRepositoryRequired indicates a nil chunk repository.
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")
	// ErrRegistryRequired indicates a nil company registry.
	ErrRegistryRequired = errors.New("company registry is required")
	// ErrSearcherRequired indicates a nil searcher.
	ErrSearcherRequired = errors.New("searcher is required")
	// ErrComposerRequired indicates a nil composer.
	ErrComposerRequired = errors.New("composer is required")
)
