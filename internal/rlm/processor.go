// Package rlm processes inputs too large for a single working window.
// The input is cut into fixed-size chunks, each chunk is analyzed
// independently by a bounded worker pool, every analysis is archived
// the moment its summary is derived, and only the summaries are merged.
// Peak live memory is one chunk analysis plus the summary set,
// independent of total input size.
//
// This is the only component in the core that runs anything in
// parallel; everything else is strictly sequential.
package rlm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/memory"
	"github.com/praxislabs/thesisd/internal/paths"
)

// Defaults and default token caps.
const (
	DefaultChunkSize = 100
	DefaultWorkers   = 5

	AnalysisTokenCap = 15000
	SummaryTokenCap  = 1500
	MergeTokenCap    = 15000
)

// chunksDirName lives under memory/.
const chunksDirName = "rlm-chunks"

// EventType enumerates processor lifecycle events.
type EventType string

const (
	EventStarted       EventType = "started"
	EventChunkStarted  EventType = "chunk_started"
	EventChunkComplete EventType = "chunk_complete"
	EventMergeStarted  EventType = "merge_started"
	EventMergeComplete EventType = "merge_complete"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// Event is an immutable progress notification. Chunk is meaningful for
// chunk_started and chunk_complete, Err for error.
type Event struct {
	Type   EventType
	Chunk  int
	Chunks int
	Err    error
	At     time.Time
}

// Handler receives events. Handlers run synchronously on the
// processor's goroutines and must not block.
type Handler func(Event)

// Item is one unit of over-budget input, e.g. one literature record.
type Item struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ChunkRecord is the persisted outcome of one chunk.
type ChunkRecord struct {
	Index           int       `json:"index"`
	ItemCount       int       `json:"item_count"`
	Summary         string    `json:"summary"`
	SummaryTokens   int       `json:"summary_tokens"`
	AnalysisTokens  int       `json:"analysis_tokens"`
	AnalysisArchive string    `json:"analysis_archive"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Synthesis is the merged result.
type Synthesis struct {
	Text       string
	Tokens     int
	ChunkCount int
	ItemCount  int
	Records    []ChunkRecord
}

// Processor runs the chunk/analyze/archive/merge pipeline.
type Processor struct {
	invoker   agent.Invoker
	mgr       *memory.Manager
	resolver  *paths.Resolver
	root      string
	chunkSize int
	workers   int

	analysisCap int
	summaryCap  int
	mergeCap    int

	logger *zap.Logger

	mu       sync.Mutex
	handlers []Handler
}

// Option configures a Processor.
type Option func(*Processor)

// WithChunkSize overrides the default 100-item chunking.
func WithChunkSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithWorkers bounds the analysis pool.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithTokenCaps overrides the analysis, summary and merge caps. Zero
// values keep the defaults.
func WithTokenCaps(analysis, summary, merge int) Option {
	return func(p *Processor) {
		if analysis > 0 {
			p.analysisCap = analysis
		}
		if summary > 0 {
			p.summaryCap = summary
		}
		if merge > 0 {
			p.mergeCap = merge
		}
	}
}

// NewProcessor creates a chunked processor for one project.
func NewProcessor(invoker agent.Invoker, mgr *memory.Manager, resolver *paths.Resolver,
	projectRoot string, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		invoker:     invoker,
		mgr:         mgr,
		resolver:    resolver,
		root:        projectRoot,
		chunkSize:   DefaultChunkSize,
		workers:     DefaultWorkers,
		analysisCap: AnalysisTokenCap,
		summaryCap:  SummaryTokenCap,
		mergeCap:    MergeTokenCap,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a progress handler.
func (p *Processor) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

func (p *Processor) emit(ev Event) {
	ev.At = time.Now().UTC()
	p.mu.Lock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Process analyzes items through agentName and returns the merged
// synthesis. Chunks run on at most `workers` goroutines; the merge is
// deterministic in chunk-index order regardless of completion order.
func (p *Processor) Process(ctx context.Context, agentName string, items []Item) (*Synthesis, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to process")
	}

	chunks := p.split(items)
	p.emit(Event{Type: EventStarted, Chunks: len(chunks)})
	p.logger.Info("chunked processing started",
		zap.String("agent", agentName),
		zap.Int("items", len(items)),
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", p.workers))

	chunksDir := filepath.Join(p.resolver.MemoryDir(p.root), chunksDirName)
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create rlm-chunks directory: %w", err)
	}

	records := make([]ChunkRecord, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			p.emit(Event{Type: EventChunkStarted, Chunk: i, Chunks: len(chunks)})
			record, err := p.processChunk(gctx, agentName, i, chunk, chunksDir)
			if err != nil {
				p.emit(Event{Type: EventError, Chunk: i, Chunks: len(chunks), Err: err})
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			records[i] = *record
			p.emit(Event{Type: EventChunkComplete, Chunk: i, Chunks: len(chunks)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.emit(Event{Type: EventMergeStarted, Chunks: len(chunks)})
	synthesis := p.merge(items, records)
	p.emit(Event{Type: EventMergeComplete, Chunks: len(chunks)})
	p.emit(Event{Type: EventCompleted, Chunks: len(chunks)})
	p.logger.Info("chunked processing complete",
		zap.Int("chunks", synthesis.ChunkCount),
		zap.Int("tokens", synthesis.Tokens))
	return synthesis, nil
}

func (p *Processor) split(items []Item) [][]Item {
	var chunks [][]Item
	for start := 0; start < len(items); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// processChunk invokes the agent on one chunk, persists the bounded
// analysis, derives the summary and archives the analysis immediately.
func (p *Processor) processChunk(ctx context.Context, agentName string, index int,
	items []Item, chunksDir string) (*ChunkRecord, error) {
	res, err := p.invoker.Invoke(ctx, agent.Request{
		Agent:   agentName,
		Prompt:  chunkPrompt(index, items),
		Context: "",
	})
	if err != nil {
		return nil, fmt.Errorf("invoke: %w", err)
	}
	if res.Failed {
		return nil, fmt.Errorf("agent reported failure: %s", res.FailReason)
	}

	analysis := memory.TruncateToTokens(res.Output, p.analysisCap)
	analysisPath := filepath.Join(chunksDir, fmt.Sprintf("chunk-%03d-analysis.md", index))
	if err := os.WriteFile(analysisPath, []byte(analysis), 0o644); err != nil {
		return nil, fmt.Errorf("write chunk analysis: %w", err)
	}

	record := &ChunkRecord{
		Index:          index,
		ItemCount:      len(items),
		Summary:        memory.TruncateToTokens(analysis, p.summaryCap),
		AnalysisTokens: memory.EstimateTokens(analysis),
		CompletedAt:    time.Now().UTC(),
	}
	record.SummaryTokens = memory.EstimateTokens(record.Summary)

	// The full analysis leaves live memory now, not at merge time.
	archivePath, err := p.mgr.Archive(ctx, analysisPath)
	if err != nil {
		return nil, fmt.Errorf("archive chunk analysis: %w", err)
	}
	record.AnalysisArchive = archivePath

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode chunk record: %w", err)
	}
	recordPath := filepath.Join(chunksDir, fmt.Sprintf("chunk-%03d.json", index))
	if err := os.WriteFile(recordPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write chunk record: %w", err)
	}
	return record, nil
}

// merge joins summaries in index order into one bounded synthesis.
func (p *Processor) merge(items []Item, records []ChunkRecord) *Synthesis {
	var b strings.Builder
	b.WriteString("# Merged Synthesis\n\n")
	for _, record := range records {
		fmt.Fprintf(&b, "## Chunk %d (%d items)\n\n%s\n\n",
			record.Index, record.ItemCount, record.Summary)
	}

	text := memory.TruncateToTokens(b.String(), p.mergeCap)
	return &Synthesis{
		Text:       text,
		Tokens:     memory.EstimateTokens(text),
		ChunkCount: len(records),
		ItemCount:  len(items),
		Records:    records,
	}
}

func chunkPrompt(index int, items []Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d items (chunk %d).\n\n", len(items), index)
	for _, item := range items {
		fmt.Fprintf(&b, "### %s\n%s\n\n", item.ID, item.Content)
	}
	return b.String()
}
