package engine

import (
	"fmt"
)

type protocolState int

const (
	stateIdle protocolState = iota
	stateStreaming
	stateMeta
	stateComplete
	stateFailed
)

// ProtocolChecker validates the order of a run's messages:
// progress(start), then batches and processing progress, then meta, then
// complete. An error message may end the run at any point.
type ProtocolChecker struct {
	state       protocolState
	runID       string
	totalChunks int
	chunks      int
}

// Observe checks the next message.
func (p *ProtocolChecker) Observe(m Message) error {
	if p.state == stateComplete || p.state == stateFailed {
		return fmt.Errorf("%s message after the run ended", m.Type)
	}
	if p.runID == "" {
		if m.RunID == "" {
			return fmt.Errorf("%s message without run id", m.Type)
		}
		p.runID = m.RunID
	} else if m.RunID != p.runID {
		return fmt.Errorf("run id changed from %s to %s", p.runID, m.RunID)
	}

	if m.Type == TypeError {
		p.state = stateFailed
		return nil
	}

	switch p.state {
	case stateIdle:
		if m.Type != TypeProgress || m.Progress == nil || m.Progress.Phase != PhaseStart {
			return fmt.Errorf("expected start progress, got %s", m.Type)
		}
		p.state = stateStreaming
		return nil

	case stateStreaming:
		switch m.Type {
		case TypeBatch:
			return p.observeBatch(m.Batch)
		case TypeProgress:
			if m.Progress == nil || m.Progress.Phase != PhaseProcessing {
				return fmt.Errorf("unexpected progress message while streaming")
			}
			if m.Progress.ChunksProcessed != p.chunks {
				return fmt.Errorf("progress reports %d chunks, %d were delivered", m.Progress.ChunksProcessed, p.chunks)
			}
			return nil
		case TypeMeta:
			if p.chunks != p.totalChunks {
				return fmt.Errorf("meta after %d of %d chunks", p.chunks, p.totalChunks)
			}
			p.state = stateMeta
			return nil
		default:
			return fmt.Errorf("unexpected %s message while streaming", m.Type)
		}

	case stateMeta:
		if m.Type != TypeComplete {
			return fmt.Errorf("expected complete after meta, got %s", m.Type)
		}
		p.state = stateComplete
		return nil
	}
	return fmt.Errorf("unexpected %s message", m.Type)
}

func (p *ProtocolChecker) observeBatch(b *Batch) error {
	if b == nil {
		return fmt.Errorf("batch message without batch")
	}
	if p.chunks == 0 {
		p.totalChunks = b.TotalChunks
	} else if b.TotalChunks != p.totalChunks {
		return fmt.Errorf("total chunks changed from %d to %d", p.totalChunks, b.TotalChunks)
	}
	if b.Chunk != p.chunks+1 {
		return fmt.Errorf("expected chunk %d, got %d", p.chunks+1, b.Chunk)
	}
	if b.IsPartial != (b.Chunk < b.TotalChunks) {
		return fmt.Errorf("chunk %d of %d has isPartial=%t", b.Chunk, b.TotalChunks, b.IsPartial)
	}
	p.chunks++
	return nil
}

// Done reports whether the run completed. A run ended by an error message
// returns an error.
func (p *ProtocolChecker) Done() error {
	switch p.state {
	case stateComplete:
		return nil
	case stateFailed:
		return fmt.Errorf("run %s failed", p.runID)
	default:
		return fmt.Errorf("run %s ended before complete", p.runID)
	}
}
