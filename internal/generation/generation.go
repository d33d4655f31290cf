// Package generation defines how answers are produced from retrieved
// passages: a Prompt, a Generator that turns it into a Stream of text
// fragments, and helpers to consume that stream.
package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"docchat/internal/domain"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("generation: stream closed")

// Prompt is a question plus the passages selected to answer it.
type Prompt struct {
	Question string
	Context  []string
}

// String renders the prompt sent to a language model.
func (p Prompt) String() string {
	var b strings.Builder
	b.WriteString("Answer the question based on the following context:\n\n")
	b.WriteString(strings.Join(p.Context, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(p.Question)
	return b.String()
}

// Generator produces a streamed answer for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (Stream, error)
}

// Stream is a finite, ordered, non-restartable sequence of text fragments.
// Next returns io.EOF after the last fragment, a *domain.GenerationError if
// the provider fails mid-stream, or the context error once cancelled.
type Stream interface {
	Next() (string, error)
	Close() error
}

// PullFunc fetches the next raw fragment. It returns io.EOF when the
// provider has nothing more to send.
type PullFunc func(ctx context.Context) (string, error)

type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	pull   PullFunc

	mu  sync.Mutex
	err error
}

// NewStream adapts pull into a Stream bound to ctx. Cancellation is checked
// before every read, empty fragments are skipped, and provider errors are
// wrapped in *domain.GenerationError. Close may be called from another
// goroutine while Next is blocked in pull.
func NewStream(ctx context.Context, pull PullFunc) Stream {
	ctx, cancel := context.WithCancel(ctx)
	return &stream{ctx: ctx, cancel: cancel, pull: pull}
}

func (s *stream) Next() (string, error) {
	for {
		if err := s.state(); err != nil {
			return "", err
		}
		if err := s.ctx.Err(); err != nil {
			return "", s.fail(err)
		}
		frag, err := s.pull(s.ctx)
		switch {
		case errors.Is(err, io.EOF):
			return "", s.fail(io.EOF)
		case err != nil:
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return "", s.fail(ctxErr)
			}
			if errors.Is(err, domain.ErrGeneration) {
				return "", s.fail(err)
			}
			return "", s.fail(&domain.GenerationError{Err: err})
		case frag != "":
			// A fragment that arrives after Close is dropped.
			if err := s.state(); err != nil {
				return "", err
			}
			return frag, nil
		}
	}
}

func (s *stream) state() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail records err unless the stream already ended, and returns the
// terminal error. A stream closed by its consumer always ends with
// ErrStreamClosed.
func (s *stream) fail(err error) error {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	err = s.err
	s.mu.Unlock()
	s.cancel()
	return err
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.err == nil {
		s.err = ErrStreamClosed
	}
	s.mu.Unlock()
	s.cancel()
	return nil
}

// Collect drains s and concatenates its fragments in arrival order. On
// failure it returns the partial text together with the error.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		frag, err := s.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
}

// FromSlice streams fixed fragments. Useful for offline generators and tests.
func FromSlice(ctx context.Context, fragments []string) Stream {
	i := 0
	return NewStream(ctx, func(context.Context) (string, error) {
		if i >= len(fragments) {
			return "", io.EOF
		}
		i++
		return fragments[i-1], nil
	})
}
