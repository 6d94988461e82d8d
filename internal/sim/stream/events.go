package stream

import "voxelstreams.ai/internal/sim/stream/xz"

type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeFailed    Outcome = "failed"
)

// Event describes the outcome of one uncached GenerateAt call.
type Event struct {
	Origin   ChunkKey
	Outcome  Outcome
	Reason   FailReason `json:",omitempty"`
	Pieces   int
	Branches int
	Bounds   xz.Range
	Draws    uint64 // random values consumed
}

// EventSink receives generation events. Sink errors are logged and never
// affect generation.
type EventSink interface {
	RecordGeneration(ev Event) error
}

// MultiSink fans one event out to several sinks and returns the first error.
type MultiSink []EventSink

func (m MultiSink) RecordGeneration(ev Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordGeneration(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
