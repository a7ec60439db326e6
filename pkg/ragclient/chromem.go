package ragclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// defaultTopK bounds how many chunks a single source query retrieves
// when the caller doesn't specify one.
const defaultTopK = 5

// ChromemService is a RAGService backed by an embedded chromem-go vector
// database, one collection per named data source. It never produces a
// PreformedCompletion — it is a plain vector-search backend, not an
// external answer-generating API.
type ChromemService struct {
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
	topK    int
	mu      sync.RWMutex
	sources map[string]*chromem.Collection
}

// Option configures a ChromemService.
type Option func(*ChromemService)

// WithTopK overrides the number of chunks retrieved per query (default 5).
func WithTopK(n int) Option {
	return func(s *ChromemService) { s.topK = n }
}

// NewChromemService builds an in-memory ChromemService using embedFn to
// embed both indexed documents and queries. Tests typically pass a
// deterministic fake embedder; production wiring passes
// chromem.NewEmbeddingFuncOllama(model, baseURL) or an OpenAI-compatible
// equivalent.
func NewChromemService(embedFn chromem.EmbeddingFunc, opts ...Option) *ChromemService {
	s := &ChromemService{
		db:      chromem.NewDB(),
		embedFn: embedFn,
		topK:    defaultTopK,
		sources: make(map[string]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexDocument adds one chunk of text to a named source's collection,
// creating the collection on first use.
func (s *ChromemService) IndexDocument(ctx context.Context, sourceName, id, content string, metadata map[string]string) error {
	col, err := s.collection(sourceName)
	if err != nil {
		return err
	}
	doc := chromem.Document{ID: id, Content: content, Metadata: metadata}
	return col.AddDocument(ctx, doc)
}

// QuerySource implements RAGService by running a similarity search
// against one source's collection and concatenating the retrieved
// chunks into a single context block.
func (s *ChromemService) QuerySource(ctx context.Context, sourceName, query string) (RetrievalResult, error) {
	col, err := s.collection(sourceName)
	if err != nil {
		return RetrievalResult{}, err
	}

	count := col.Count()
	if count == 0 {
		return RetrievalResult{}, nil
	}
	topK := s.topK
	if topK > count {
		topK = count
	}

	results, err := col.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("query source %q: %w", sourceName, err)
	}

	chunks := make([]string, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.Content)
	}
	return RetrievalResult{Context: strings.Join(chunks, "\n\n")}, nil
}

func (s *ChromemService) collection(sourceName string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.sources[sourceName]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.sources[sourceName]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(sourceName, nil, s.embedFn)
	if err != nil {
		return nil, fmt.Errorf("get or create source %q: %w", sourceName, err)
	}
	s.sources[sourceName] = col
	return col, nil
}

var _ RAGService = (*ChromemService)(nil)
