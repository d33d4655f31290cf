package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"docchat/internal/domain"
)

func TestPrompt_String(t *testing.T) {
	p := Prompt{Question: "Who?", Context: []string{"first", "second"}}
	want := "Answer the question based on the following context:\n\nfirst\n\nsecond\n\nQuestion: Who?"
	if got := p.String(); got != want {
		t.Fatalf("unexpected prompt:\n%q\nwant\n%q", got, want)
	}
}

func TestCollect_ConcatenatesAndSkipsEmpty(t *testing.T) {
	s := FromSlice(context.Background(), []string{"Hel", "", "lo", " world"})
	text, err := Collect(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("expected %q, got %q", "Hello world", text)
	}
}

func TestStream_ProviderErrorIsDistinct(t *testing.T) {
	calls := 0
	s := NewStream(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial ", nil
		}
		return "", errors.New("connection reset")
	})
	text, err := Collect(s)
	if text != "partial " {
		t.Fatalf("expected partial text to survive, got %q", text)
	}
	var ge *domain.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected error to match ErrGeneration")
	}
}

func TestStream_CancelStopsBetweenFragments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pulls := 0
	s := NewStream(ctx, func(context.Context) (string, error) {
		pulls++
		return "x", nil
	})
	if _, err := s.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	if _, err := s.Next(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pulls != 1 {
		t.Fatalf("expected no pull after cancellation, got %d pulls", pulls)
	}
}

func TestStream_CloseEndsStream(t *testing.T) {
	s := FromSlice(context.Background(), []string{"a", "b"})
	_ = s.Close()
	if _, err := s.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestStream_EOFIsSticky(t *testing.T) {
	s := FromSlice(context.Background(), nil)
	for i := 0; i < 2; i++ {
		if _, err := s.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	}
}

func TestCollect_LongStream(t *testing.T) {
	frags := strings.Split(strings.Repeat("ab", 50), "")
	text, err := Collect(FromSlice(context.Background(), frags))
	if err != nil || len(text) != 100 {
		t.Fatalf("unexpected result: %d chars, err=%v", len(text), err)
	}
}

func TestStream_CloseWhileNextBlocked(t *testing.T) {
	started := make(chan struct{})
	s := NewStream(context.Background(), func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "late", ctx.Err()
	})
	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()
	<-started
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamClosed) {
			t.Fatalf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	if _, err := s.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed on later reads, got %v", err)
	}
}

func TestStream_FragmentAfterCloseIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := NewStream(context.Background(), func(context.Context) (string, error) {
		close(started)
		<-release
		return "too late", nil
	})
	done := make(chan error, 1)
	go func() {
		frag, err := s.Next()
		if frag != "" {
			err = errors.New("fragment delivered after close: " + frag)
		}
		done <- err
	}()
	<-started
	s.Close()
	close(release)
	if err := <-done; !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestStream_CancelWithoutCloseReportsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	s := NewStream(ctx, func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()
	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
