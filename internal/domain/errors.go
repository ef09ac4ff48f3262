package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput signals a malformed caller request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrConfiguration signals missing or invalid settings. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrSessionNotFound signals an unknown chat session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRetrieval signals a failed vector store read during a query.
	ErrRetrieval = errors.New("retrieval failure")
	// ErrGeneration signals a failed or empty completion.
	ErrGeneration = errors.New("generation failure")
	// ErrIngestion signals a failed ingestion run.
	ErrIngestion = errors.New("ingestion failure")
	// ErrInvalidCatalog signals a catalog file with an unexpected shape.
	ErrInvalidCatalog = errors.New("invalid catalog file")

	// ErrTokenBudgetExceeded signals an exhausted provider token budget.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a chat completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
)
