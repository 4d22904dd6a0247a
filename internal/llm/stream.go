package llm

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Stream delivers generated answer text incrementally. Callers must Close it
// when done, including on early exit.
type Stream struct {
	sr *schema.StreamReader[*schema.Message]
	// cancel releases the context the stream was opened with, when the
	// opener tied one to the stream's lifetime.
	cancel context.CancelFunc
}

// NewStream wraps an Eino message stream.
func NewStream(sr *schema.StreamReader[*schema.Message]) *Stream {
	return &Stream{sr: sr}
}

// Recv returns the next text chunk. It returns io.EOF when the stream is
// exhausted. Empty chunks (tool-call frames, role markers) are skipped.
func (s *Stream) Recv() (string, error) {
	for {
		msg, err := s.sr.Recv()
		if err != nil {
			return "", err
		}
		if msg != nil && msg.Content != "" {
			return msg.Content, nil
		}
	}
}

// Close releases the underlying stream.
func (s *Stream) Close() {
	s.sr.Close()
	if s.cancel != nil {
		s.cancel()
	}
}
