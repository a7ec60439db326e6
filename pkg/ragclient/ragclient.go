// Package ragclient defines the narrow retrieval contract the Streaming
// Adapter (spec §4.G) consumes plus one concrete, embedded
// implementation backed by chromem-go. Production deployments supply
// their own RAGService; this one exists so the contract is exercised by
// real code rather than left abstract.
package ragclient

import "context"

// RetrievalResult is what a single named data source returns for one
// query. PreformedCompletion, when non-empty, is a ready-made chat
// answer the source produced itself (e.g. an external RAG API that
// already calls its own LLM); the Streaming Adapter returns it directly
// without running the main model, but only when exactly one source was
// queried — with several sources selected, every source's Context is
// concatenated and PreformedCompletion is ignored, since there is no
// way to pick a winner among several candidate answers.
type RetrievalResult struct {
	Context             string
	PreformedCompletion string
}

// RAGService is the retrieval backend the Streaming Adapter's RAG
// variants consume, one named source at a time.
type RAGService interface {
	QuerySource(ctx context.Context, sourceName, query string) (RetrievalResult, error)
}
