// Package scheduler drives classification of a whole input in adaptively
// sized chunks, caching each chunk's records and reporting progress.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/newhook/diaglog/internal/cachemanager"
	"github.com/newhook/diaglog/internal/highlight"
	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/model"
	"github.com/newhook/diaglog/internal/parser"
	"github.com/newhook/diaglog/internal/prescan"
)

// Options tunes chunking, buffering and progress reporting.
type Options struct {
	// TargetChunkBytes is the approximate serialized size of one chunk.
	TargetChunkBytes int
	SampleLines      int
	MinChunkLines    int
	MaxChunkLines    int
	// ChunkLines, when positive, overrides the adaptive chunk size.
	ChunkLines int

	ProgressEvery int
	YieldEvery    int

	Buffers           int
	InitialBufferSize int
	MaxBufferSize     int
	BufferGrowth      float64
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		TargetChunkBytes:  512 * 1024,
		SampleLines:       100,
		MinChunkLines:     100,
		MaxChunkLines:     5000,
		ProgressEvery:     10,
		YieldEvery:        50,
		Buffers:           2,
		InitialBufferSize: 2 * 1024 * 1024,
		MaxBufferSize:     16 * 1024 * 1024,
		BufferGrowth:      1.5,
	}
}

// Chunk is a contiguous run of input lines.
type Chunk struct {
	Index int
	// Start is the 0-based input index of Lines[0].
	Start       int
	Lines       []string
	Fingerprint uint64
}

// Start is reported once, before the first chunk.
type Start struct {
	TotalLines         int
	EstimatedChunkSize int
	TotalChunks        int
}

// Batch carries the records of one chunk. Records must be treated as read
// only. Payload is the JSON encoding of Records and is only valid until the
// next batch is delivered.
type Batch struct {
	Records     []model.Record
	Payload     []byte
	Chunk       int // 1-based
	TotalChunks int
	IsPartial   bool
	Cached      bool
}

// Progress reports how far a run has come.
type Progress struct {
	Processed       int
	TotalLines      int
	ChunksProcessed int
	TotalChunks     int
	// Rate is lines per second.
	Rate float64
}

// Handler receives a run's events in order. Returning an error stops the run.
type Handler interface {
	Start(Start) error
	Batch(Batch) error
	Progress(Progress) error
}

// Stats summarizes cache use for one run.
type Stats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// HitRate is the fraction of chunks served from the cache.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Result is the outcome of a completed run.
type Result struct {
	Records     []model.Record
	Outcomes    prescan.Result
	State       parser.State
	ChunkLines  int
	TotalChunks int
	TotalLines  int
	Stats       Stats
	Elapsed     time.Duration
}

// ChunkCache stores classified chunks by cache key.
type ChunkCache = cachemanager.CacheManager[uint64, CachedChunk]

// CachedChunk is the cached classification of one chunk.
type CachedChunk struct {
	Records []model.Record
	Exit    parser.State
}

// Scheduler runs inputs through the classifier. Runs must not overlap;
// ClearCache may be called at any time.
type Scheduler struct {
	opts    Options
	cache   ChunkCache
	buffers *bufferPool
}

// New creates a scheduler. A nil cache disables caching.
func New(opts Options, cache ChunkCache) *Scheduler {
	return &Scheduler{
		opts:    opts,
		cache:   cache,
		buffers: newBufferPool(opts.Buffers, opts.InitialBufferSize, opts.MaxBufferSize, opts.BufferGrowth),
	}
}

// ClearCache drops every cached chunk.
func (s *Scheduler) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Flush(ctx)
}

// CacheStats returns lifetime cache counters.
func (s *Scheduler) CacheStats() cachemanager.Stats {
	if s.cache == nil {
		return cachemanager.Stats{}
	}
	return s.cache.Stats()
}

// Plan returns the number of lines per chunk for lines.
func Plan(lines []string, opts Options) int {
	if opts.ChunkLines > 0 {
		return opts.ChunkLines
	}
	n := min(len(lines), opts.SampleLines)
	if n == 0 {
		return opts.MinChunkLines
	}
	total := 0
	for _, l := range lines[:n] {
		total += len(l)
	}
	avg := max(float64(total)/float64(n), 1)
	size := int(float64(opts.TargetChunkBytes) / avg)
	return max(opts.MinChunkLines, min(opts.MaxChunkLines, size))
}

// Split partitions lines into chunks of size lines.
func Split(lines []string, size int) []Chunk {
	if size < 1 {
		size = 1
	}
	chunks := make([]Chunk, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := min(start+size, len(lines))
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Start:       start,
			Lines:       lines[start:end],
			Fingerprint: contentFingerprint(lines[start:end]),
		})
	}
	return chunks
}

// Run prescans lines, then classifies them chunk by chunk in order. On
// cancellation it stops at the next chunk boundary and returns the partial
// result with the context's error.
func (s *Scheduler) Run(ctx context.Context, hl *highlight.Classifier, lines []string, h Handler) (*Result, error) {
	began := time.Now()

	outcomes := prescan.Scan(hl, lines)
	classifier := parser.New(hl, &outcomes)
	digest := outcomeDigest(&outcomes)
	version := hl.Catalog().Version()

	size := Plan(lines, s.opts)
	chunks := Split(lines, size)
	res := &Result{
		Records:     make([]model.Record, 0, len(lines)),
		Outcomes:    outcomes,
		ChunkLines:  size,
		TotalChunks: len(chunks),
		TotalLines:  len(lines),
	}

	if err := h.Start(Start{TotalLines: len(lines), EstimatedChunkSize: size, TotalChunks: len(chunks)}); err != nil {
		return res, err
	}

	state := parser.State{}
	processed := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			logging.Debug("run cancelled", "chunk", i, "chunks", len(chunks))
			res.State = state
			res.Elapsed = time.Since(began)
			return res, err
		}

		key := cacheKey(version, digest, state, chunk.Start, chunk.Fingerprint)
		records, exit, cached := s.classify(ctx, classifier, key, state, chunk)
		if cached {
			res.Stats.Hits++
		} else {
			res.Stats.Misses++
		}

		data, err := json.Marshal(records)
		if err != nil {
			return res, fmt.Errorf("encode chunk %d: %w", chunk.Index+1, err)
		}
		batch := Batch{
			Records:     records,
			Payload:     s.buffers.fill(data),
			Chunk:       i + 1,
			TotalChunks: len(chunks),
			IsPartial:   i < len(chunks)-1,
			Cached:      cached,
		}
		if err := h.Batch(batch); err != nil {
			return res, err
		}

		res.Records = append(res.Records, records...)
		state = exit
		processed = chunk.Start + len(chunk.Lines)

		if s.opts.ProgressEvery > 0 && (i%s.opts.ProgressEvery == 0 || i == len(chunks)-1) {
			elapsed := time.Since(began).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(processed) / elapsed
			}
			if err := h.Progress(Progress{
				Processed:       processed,
				TotalLines:      len(lines),
				ChunksProcessed: i + 1,
				TotalChunks:     len(chunks),
				Rate:            rate,
			}); err != nil {
				return res, err
			}
		}

		if s.opts.YieldEvery > 0 && i%s.opts.YieldEvery == 0 {
			runtime.Gosched()
		}
	}

	res.State = state
	res.Elapsed = time.Since(began)
	logging.Debug("run complete",
		"lines", len(lines),
		"chunks", len(chunks),
		"chunk_lines", size,
		"cache_hits", res.Stats.Hits,
		"elapsed", res.Elapsed)
	return res, nil
}

func (s *Scheduler) classify(ctx context.Context, c *parser.Classifier, key uint64, entry parser.State, chunk Chunk) ([]model.Record, parser.State, bool) {
	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, key); ok {
			return hit.Records, hit.Exit, true
		}
	}
	records, exit := c.ClassifyLines(entry, chunk.Start, chunk.Lines)
	if s.cache != nil {
		s.cache.Set(ctx, key, CachedChunk{Records: records, Exit: exit}, cachemanager.DefaultExpiration)
	}
	return records, exit, false
}
