package extractive

import (
	"context"
	"testing"

	"docchat/internal/generation"
)

func TestGenerate_StreamsMatchingSentences(t *testing.T) {
	g := New(1)
	s, err := g.Generate(context.Background(), generation.Prompt{
		Question: "Which port does the server use?",
		Context:  []string{"The server listens on port 8080. Logs go to stdout.", "Backups run nightly."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := generation.Collect(s)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if text != "The server listens on port 8080." {
		t.Fatalf("unexpected answer %q", text)
	}
}

func TestGenerate_EmptyContext(t *testing.T) {
	s, err := New(3).Generate(context.Background(), generation.Prompt{Question: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := generation.Collect(s)
	if err != nil || text != "" {
		t.Fatalf("expected empty answer, got %q err=%v", text, err)
	}
}

func TestGenerate_UsesCutOffPassageEnd(t *testing.T) {
	s, err := New(1).Generate(context.Background(), generation.Prompt{
		Question: "When do backups run?",
		Context:  []string{"Logs go to stdout. Backups run nightly at two in the morn"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := generation.Collect(s)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if text != "Backups run nightly at two in the morn" {
		t.Fatalf("unexpected answer %q", text)
	}
}
