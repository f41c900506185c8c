// Package engine runs classification requests one at a time and reports
// each run as an ordered stream of messages.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/newhook/diaglog/internal/cachemanager"
	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/highlight"
	"github.com/newhook/diaglog/internal/index"
	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/parser"
	"github.com/newhook/diaglog/internal/scheduler"
)

var (
	// ErrNotText is returned for input that is not UTF-8 text.
	ErrNotText = errors.New("input is not text")
	// ErrClosed is returned once the engine has stopped.
	ErrClosed = errors.New("engine closed")
)

// Options configures an Engine.
type Options struct {
	// RulesPath is the rule source; empty means the built-in rules.
	RulesPath string
	StripANSI bool
	CacheSize int
	QueueSize int
	Scheduler scheduler.Options
	Index     index.Options
	// LoadCatalog overrides how the catalog is loaded; used by tests.
	LoadCatalog func(path string) *catalog.Catalog
}

// DefaultOptions returns the standard engine options.
func DefaultOptions() Options {
	return Options{
		StripANSI: true,
		CacheSize: cachemanager.DefaultMaxEntries,
		QueueSize: 8,
		Scheduler: scheduler.DefaultOptions(),
		Index:     index.DefaultOptions(),
	}
}

type request struct {
	ctx   context.Context
	runID string
	input []byte
	out   chan Message
}

// Engine owns the rule catalog and the chunk cache. Runs never overlap.
type Engine struct {
	opts  Options
	sched *scheduler.Scheduler

	requests chan request
	ready    chan struct{}
	done     chan struct{}
	startMu  sync.Once

	mu sync.RWMutex
	hl *highlight.Classifier
}

// New creates an engine. Call Start before Process results can arrive.
func New(opts Options) *Engine {
	if opts.LoadCatalog == nil {
		opts.LoadCatalog = catalog.Load
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	cache := cachemanager.NewInMemoryCacheManager[uint64, scheduler.CachedChunk](
		"chunks", opts.CacheSize, cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	return &Engine{
		opts:     opts,
		sched:    scheduler.New(opts.Scheduler, cache),
		requests: make(chan request, opts.QueueSize),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start loads the catalog in the background and serves requests until ctx
// is cancelled. Requests made before the catalog is loaded wait for it.
func (e *Engine) Start(ctx context.Context) {
	e.startMu.Do(func() {
		go e.serve(ctx)
	})
}

// Ready is closed once the catalog is loaded.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Done is closed once the engine has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Catalog returns the current rule catalog, or nil before it is loaded.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.hl == nil {
		return nil
	}
	return e.hl.Catalog()
}

// ReloadCatalog replaces the catalog. Runs already started keep the
// catalog they began with.
func (e *Engine) ReloadCatalog(path string) *catalog.Catalog {
	c := e.opts.LoadCatalog(path)
	e.mu.Lock()
	e.hl = highlight.New(c)
	e.mu.Unlock()
	logging.Info("rule catalog reloaded", "source", c.Source(), "rules", len(c.Rules()))
	return c
}

// ClearCache drops every cached chunk. It is safe to call during a run.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.sched.ClearCache(ctx)
}

// CacheStats returns lifetime chunk cache counters.
func (e *Engine) CacheStats() cachemanager.Stats {
	return e.sched.CacheStats()
}

// Process queues input for classification. The returned channel delivers
// the run's messages in order and is closed when the run ends. Cancelling
// ctx stops the run at the next chunk boundary; messages already delivered
// stand.
func (e *Engine) Process(ctx context.Context, input []byte) (<-chan Message, error) {
	if !IsText(input) {
		return nil, ErrNotText
	}
	req := request{
		ctx:   ctx,
		runID: uuid.NewString(),
		input: input,
		out:   make(chan Message),
	}
	select {
	case <-e.done:
		return nil, ErrClosed
	default:
	}
	select {
	case e.requests <- req:
		return req.out, nil
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsText reports whether input is valid UTF-8 without NUL bytes.
func IsText(input []byte) bool {
	return utf8.Valid(input) && bytes.IndexByte(input, 0) < 0
}

func (e *Engine) serve(ctx context.Context) {
	defer func() {
		close(e.done)
		e.drain()
	}()

	loaded := make(chan *catalog.Catalog, 1)
	go func() {
		loaded <- e.opts.LoadCatalog(e.opts.RulesPath)
	}()

	select {
	case c := <-loaded:
		e.mu.Lock()
		if e.hl == nil {
			e.hl = highlight.New(c)
		}
		e.mu.Unlock()
		if reason := c.FallbackReason(); reason != nil {
			logging.WarnContext(ctx, "using built-in rules", "requested", e.opts.RulesPath, "error", reason)
		}
		close(e.ready)
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			e.run(req)
		}
	}
}

// drain closes the channels of requests that will never run.
func (e *Engine) drain() {
	for {
		select {
		case req := <-e.requests:
			close(req.out)
		default:
			return
		}
	}
}

func (e *Engine) classifier() *highlight.Classifier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hl
}

func (e *Engine) run(req request) {
	defer close(req.out)

	log := logging.With("run", req.runID)
	ctx := req.ctx
	if ctx.Err() != nil {
		return
	}

	hl := e.classifier()
	lines := parser.SplitLines(string(req.input), e.opts.StripANSI)
	s := &sink{ctx: ctx, out: req.out, runID: req.runID}

	res, err := e.sched.Run(ctx, hl, lines, s)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("run cancelled", "error", err)
			return
		}
		log.Error("run failed", "error", err)
		_ = s.send(Message{Type: TypeError, Error: err.Error()})
		return
	}

	meta := index.Build(res.Records, e.opts.Index)
	if err := s.send(Message{Type: TypeMeta, Meta: &Meta{
		Meta:      meta,
		Outcomes:  res.Outcomes.Outcomes,
		Order:     res.Outcomes.Order,
		Anomalies: res.Outcomes.Anomalies,
		Records:   res.Records,
	}}); err != nil {
		return
	}

	elapsed := res.Elapsed
	rate := 0.0
	if elapsed > 0 {
		rate = float64(len(lines)) / elapsed.Seconds()
	}
	_ = s.send(Message{Type: TypeComplete, Complete: &Complete{
		TotalTimeMS:    float64(elapsed) / float64(time.Millisecond),
		LinesPerSecond: rate,
		CacheHitRate:   res.Stats.HitRate(),
		TotalLines:     len(lines),
		Records:        len(res.Records),
	}})
	log.Info("run complete",
		"lines", len(lines),
		"records", len(res.Records),
		"chunks", res.TotalChunks,
		"cache_hit_rate", res.Stats.HitRate(),
		"elapsed", elapsed)
}

// sink forwards scheduler events as protocol messages.
type sink struct {
	ctx   context.Context
	out   chan<- Message
	runID string
}

func (s *sink) send(m Message) error {
	m.RunID = s.runID
	select {
	case s.out <- m:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("deliver %s: %w", m.Type, s.ctx.Err())
	}
}

func (s *sink) Start(st scheduler.Start) error {
	return s.send(Message{Type: TypeProgress, Progress: &Progress{
		Phase:              PhaseStart,
		TotalLines:         st.TotalLines,
		EstimatedChunkSize: st.EstimatedChunkSize,
		TotalChunks:        st.TotalChunks,
	}})
}

func (s *sink) Batch(b scheduler.Batch) error {
	return s.send(Message{Type: TypeBatch, Batch: &Batch{
		Records:     b.Records,
		Payload:     b.Payload,
		Chunk:       b.Chunk,
		TotalChunks: b.TotalChunks,
		IsPartial:   b.IsPartial,
		Cached:      b.Cached,
	}})
}

func (s *sink) Progress(p scheduler.Progress) error {
	return s.send(Message{Type: TypeProgress, Progress: &Progress{
		Phase:           PhaseProcessing,
		TotalLines:      p.TotalLines,
		Processed:       p.Processed,
		ChunksProcessed: p.ChunksProcessed,
		TotalChunks:     p.TotalChunks,
		Rate:            p.Rate,
	}})
}
