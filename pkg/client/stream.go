package client

import (
	"errors"
	"strings"
	"sync"
)

// ErrStreamConsumed is returned when a stream is iterated after it ended
var ErrStreamConsumed = errors.New("stream already consumed")

// Chunk is one step of a streamed response
type Chunk struct {
	Text string
	Err  error
}

// Stream is a lazy, finite sequence of text fragments. It can be consumed
// once; Next returns false at the end or on the first error.
type Stream struct {
	chunks  <-chan Chunk
	cancel  func()
	current string
	err     error
	done    bool
	once    sync.Once
}

// NewStream wraps a channel of chunks. The producer sends without blocking on
// anything else and closes the channel when finished; Close keeps draining so
// the producer always exits. cancel stops the producer early and may be nil.
func NewStream(chunks <-chan Chunk, cancel func()) *Stream {
	return &Stream{chunks: chunks, cancel: cancel}
}

// Next advances to the next fragment
func (s *Stream) Next() bool {
	if s.done {
		if s.err == nil {
			s.err = ErrStreamConsumed
		}
		return false
	}

	chunk, ok := <-s.chunks
	if !ok {
		s.finish()
		return false
	}
	if chunk.Err != nil {
		s.err = chunk.Err
		s.finish()
		return false
	}
	s.current = chunk.Text
	return true
}

// Fragment returns the fragment read by the last call to Next
func (s *Stream) Fragment() string {
	return s.current
}

// Err returns the error that ended the stream, if any
func (s *Stream) Err() error {
	if errors.Is(s.err, ErrStreamConsumed) {
		return nil
	}
	return s.err
}

// Close releases the underlying connection
func (s *Stream) Close() error {
	s.finish()
	// drain so the producer goroutine can exit
	go func() {
		for range s.chunks {
		}
	}()
	return nil
}

// Collect drains the stream, calling fn for every fragment, and returns the
// concatenated text
func (s *Stream) Collect(fn func(string)) (string, error) {
	defer s.Close()

	var sb strings.Builder
	for s.Next() {
		if fn != nil {
			fn(s.Fragment())
		}
		sb.WriteString(s.Fragment())
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (s *Stream) finish() {
	s.done = true
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
