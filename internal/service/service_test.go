package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docchat/internal/chunker"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/embedding/hashing"
	"docchat/internal/generation"
	"docchat/internal/generation/extractive"
)

const animals = "Cats are small domestic felines that purr and chase mice. " +
	"Dogs are loyal companions that bark and fetch sticks. " +
	"Cars are motor vehicles with four wheels and an engine. " +
	"Kittens grow into cats and love to purr in the sun."

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []generation.Prompt
	endless bool
}

func (g *recordingGenerator) Name() string { return "recording" }

func (g *recordingGenerator) Generate(ctx context.Context, p generation.Prompt) (generation.Stream, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	if g.endless {
		return generation.NewStream(ctx, func(context.Context) (string, error) { return "x", nil }), nil
	}
	return generation.FromSlice(ctx, []string{"ok"}), nil
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Embed(context.Context, string, domain.Purpose) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestService(t *testing.T, provider domain.EmbeddingProvider, gen generation.Generator) *Service {
	t.Helper()
	emb := embedding.New(provider, embedding.Options{Dimension: 64, MaxChars: 3000, Workers: 2}, quietLogger())
	return New(chunker.New(80, 10), emb, gen, Options{TopK: 2}, quietLogger())
}

func TestAsk_NoDocument(t *testing.T) {
	svc := newTestService(t, hashing.New(64), &recordingGenerator{})
	if _, err := svc.Ask(context.Background(), "what purrs?"); !errors.Is(err, domain.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}

func TestLoad_BuildsSession(t *testing.T) {
	svc := newTestService(t, hashing.New(64), &recordingGenerator{})
	sess, err := svc.Load(context.Background(), "animals.txt", []byte(animals))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.ID == "" || sess.Name != "animals.txt" {
		t.Fatalf("unexpected session identity: %+v", sess)
	}
	if len(sess.Passages) == 0 || len(sess.Passages) != len(sess.Matrix) {
		t.Fatalf("passages=%d matrix=%d", len(sess.Passages), len(sess.Matrix))
	}
	for i, p := range sess.Passages {
		if p.DocumentID != sess.ID || p.Index != i {
			t.Fatalf("passage %d has document %q index %d", i, p.DocumentID, p.Index)
		}
	}
	if sess.Summary == "" {
		t.Fatal("expected a summary")
	}
	if svc.Current() != sess {
		t.Fatal("loaded session is not current")
	}
}

func TestLoad_SameDocumentIsNoop(t *testing.T) {
	svc := newTestService(t, hashing.New(64), &recordingGenerator{})
	first, err := svc.Load(context.Background(), "animals.txt", []byte(animals))
	if err != nil {
		t.Fatal(err)
	}
	again, err := svc.Load(context.Background(), "animals.txt", []byte(animals))
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Fatal("reloading the active document should return the current session")
	}
	edited, err := svc.Load(context.Background(), "animals.txt", []byte("Engines need oil."))
	if err != nil {
		t.Fatal(err)
	}
	if edited == first || edited.Text != "Engines need oil." {
		t.Fatal("changed content under the same name should replace the session")
	}
	other, err := svc.Load(context.Background(), "notes.md", []byte("# Notes\nEngines need oil."))
	if err != nil {
		t.Fatal(err)
	}
	if other == edited || svc.Current() != other {
		t.Fatal("a different document should replace the session")
	}
}

func TestLoadFile_SameBaseNameDifferentDirectory(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	pathA := filepath.Join(dirA, "notes.txt")
	pathB := filepath.Join(dirB, "notes.txt")
	if err := os.WriteFile(pathA, []byte("Cats purr."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte("Dogs bark."), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(t, hashing.New(64), &recordingGenerator{})
	a, err := svc.LoadFile(context.Background(), pathA)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.LoadFile(context.Background(), pathB)
	if err != nil {
		t.Fatal(err)
	}
	if b == a || b.Text != "Dogs bark." || svc.Current() != b {
		t.Fatalf("second file was not loaded: current text %q", svc.Current().Text)
	}
	if a.Name != "notes.txt" || b.Name != "notes.txt" || a.Source == b.Source {
		t.Fatalf("unexpected identity: a=%q/%q b=%q/%q", a.Name, a.Source, b.Name, b.Source)
	}
	again, err := svc.LoadFile(context.Background(), pathB)
	if err != nil {
		t.Fatal(err)
	}
	if again != b {
		t.Fatal("reopening the active file should be a no-op")
	}
}

func TestLoad_UnsupportedKeepsPreviousSession(t *testing.T) {
	svc := newTestService(t, hashing.New(64), &recordingGenerator{})
	prev, err := svc.Load(context.Background(), "animals.txt", []byte(animals))
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Load(context.Background(), "image.png", []byte{0x89, 'P', 'N', 'G'})
	var ufe *domain.UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if svc.Current() != prev {
		t.Fatal("failed upload must not replace the session")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "animals.txt")
	if err := os.WriteFile(path, []byte(animals), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(t, hashing.New(64), &recordingGenerator{})
	sess, err := svc.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Name != "animals.txt" {
		t.Fatalf("expected base name, got %q", sess.Name)
	}
	if _, err := svc.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAsk_PromptUsesRetrievedPassages(t *testing.T) {
	gen := &recordingGenerator{}
	svc := newTestService(t, hashing.New(64), gen)
	if _, err := svc.Load(context.Background(), "animals.txt", []byte(animals)); err != nil {
		t.Fatal(err)
	}
	ans, err := svc.Ask(context.Background(), "which animals purr?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	text, err := generation.Collect(ans.Stream)
	if err != nil || text != "ok" {
		t.Fatalf("collect: %q %v", text, err)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(ans.Sources))
	}
	if !strings.Contains(strings.ToLower(ans.Sources[0].Passage.Text), "purr") {
		t.Fatalf("best source should mention purring: %q", ans.Sources[0].Passage.Text)
	}
	if ans.Sources[0].Score < ans.Sources[1].Score {
		t.Fatal("sources not ordered by score")
	}
	p := gen.prompts[0]
	if p.Question != "which animals purr?" || len(p.Context) != 2 {
		t.Fatalf("unexpected prompt %+v", p)
	}
	for i, src := range ans.Sources {
		if p.Context[i] != src.Passage.Text {
			t.Fatalf("context %d does not match source passage", i)
		}
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	gen := &recordingGenerator{}
	svc := newTestService(t, hashing.New(64), gen)
	if _, err := svc.Load(context.Background(), "animals.txt", []byte(animals)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ask(context.Background(), "   "); !errors.Is(err, domain.ErrZeroQueryVector) {
		t.Fatalf("expected ErrZeroQueryVector, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Fatal("generator must not be called for an unembeddable question")
	}
}

func TestAsk_SupersedesPreviousAnswer(t *testing.T) {
	svc := newTestService(t, hashing.New(64), &recordingGenerator{endless: true})
	if _, err := svc.Load(context.Background(), "animals.txt", []byte(animals)); err != nil {
		t.Fatal(err)
	}
	first, err := svc.Ask(context.Background(), "cats")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Stream.Next(); err != nil {
		t.Fatalf("first fragment: %v", err)
	}
	second, err := svc.Ask(context.Background(), "dogs")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Stream.Close()
	if _, err := first.Stream.Next(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected superseded stream to be cancelled, got %v", err)
	}
	if _, err := second.Stream.Next(); err != nil {
		t.Fatalf("second stream should be live: %v", err)
	}
}

func TestCancel_StopsActiveAnswer(t *testing.T) {
	svc := newTestService(t, hashing.New(64), &recordingGenerator{endless: true})
	if _, err := svc.Load(context.Background(), "animals.txt", []byte(animals)); err != nil {
		t.Fatal(err)
	}
	ans, err := svc.Ask(context.Background(), "cars")
	if err != nil {
		t.Fatal(err)
	}
	svc.Cancel()
	if _, err := ans.Stream.Next(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestLoad_FailedEmbeddingsStillLoad(t *testing.T) {
	svc := newTestService(t, failingProvider{}, &recordingGenerator{})
	sess, err := svc.Load(context.Background(), "animals.txt", []byte(animals))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, v := range sess.Matrix {
		if len(v) != 64 || !v.IsZero() {
			t.Fatalf("row %d should be a zero vector", i)
		}
	}
	if _, err := svc.Ask(context.Background(), "cats"); !errors.Is(err, domain.ErrZeroQueryVector) {
		t.Fatalf("expected ErrZeroQueryVector, got %v", err)
	}
}

func TestAsk_ExtractiveEndToEnd(t *testing.T) {
	svc := newTestService(t, hashing.New(64), extractive.New(2))
	if _, err := svc.Load(context.Background(), "animals.txt", []byte(animals)); err != nil {
		t.Fatal(err)
	}
	ans, err := svc.Ask(context.Background(), "what do dogs fetch?")
	if err != nil {
		t.Fatal(err)
	}
	text, err := generation.Collect(ans.Stream)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "fetch") {
		t.Fatalf("expected an answer about fetching, got %q", text)
	}
}
