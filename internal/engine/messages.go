package engine

import (
	"encoding/json"

	"github.com/newhook/diaglog/internal/index"
	"github.com/newhook/diaglog/internal/model"
	"github.com/newhook/diaglog/internal/prescan"
)

// MessageType names a protocol message.
type MessageType string

const (
	TypeProgress MessageType = "progress"
	TypeBatch    MessageType = "batch"
	TypeMeta     MessageType = "meta"
	TypeComplete MessageType = "complete"
	TypeError    MessageType = "error"
)

// Progress phases.
const (
	PhaseStart      = "start"
	PhaseProcessing = "processing"
)

// Message is one event of a run. Exactly one payload field is set,
// matching Type.
type Message struct {
	Type  MessageType `json:"type"`
	RunID string      `json:"runId"`

	Progress *Progress `json:"progress,omitempty"`
	Batch    *Batch    `json:"batch,omitempty"`
	Meta     *Meta     `json:"meta,omitempty"`
	Complete *Complete `json:"complete,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Progress reports run progress. Start messages carry TotalLines and
// EstimatedChunkSize; processing messages carry the counters and Rate.
type Progress struct {
	Phase              string  `json:"phase"`
	TotalLines         int     `json:"totalLines"`
	EstimatedChunkSize int     `json:"estimatedChunkSize,omitempty"`
	Processed          int     `json:"processed"`
	ChunksProcessed    int     `json:"chunksProcessed,omitempty"`
	TotalChunks        int     `json:"totalChunks,omitempty"`
	Rate               float64 `json:"rate,omitempty"`
}

// Batch carries one chunk's records. Payload is the JSON encoding of
// Records; it is only valid until the next message is received.
type Batch struct {
	Records     []model.Record  `json:"-"`
	Payload     json.RawMessage `json:"records"`
	Chunk       int             `json:"chunk"`
	TotalChunks int             `json:"totalChunks"`
	IsPartial   bool            `json:"isPartial"`
	Cached      bool            `json:"cached,omitempty"`
}

// Meta carries the derived indexes once every chunk is classified.
// Records holds the finalized record sequence for in-process consumers.
type Meta struct {
	index.Meta
	Outcomes  map[string]model.Outcome `json:"outcomes"`
	Order     []string                 `json:"order"`
	Anomalies []prescan.Anomaly        `json:"anomalies,omitempty"`

	Records []model.Record `json:"-"`
}

// Complete closes a successful run.
type Complete struct {
	TotalTimeMS    float64 `json:"totalTime"`
	LinesPerSecond float64 `json:"linesPerSecond"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	TotalLines     int     `json:"totalLines"`
	Records        int     `json:"records"`
}
