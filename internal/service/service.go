// Package service wires extraction, chunking, embedding, retrieval and
// generation into a single-document question answering session.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"docchat/internal/chunker"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/extract"
	"docchat/internal/generation"
	"docchat/internal/retriever"
	"docchat/internal/summarizer"
)

// Session is one uploaded document with its passages and their vectors.
// A Session is never mutated after it is published; uploading a different
// document replaces it wholesale.
type Session struct {
	ID   string
	Name string
	// Source identifies where the document came from: the absolute path for
	// LoadFile, the name for Load.
	Source string
	// Digest is the hex SHA-256 of the raw document bytes.
	Digest    string
	Text      string
	Passages  []domain.Passage
	Matrix    domain.Matrix
	Summary   string
	CreatedAt time.Time
}

// Answer is the result of Ask: the passages forwarded to the generator and
// the stream of answer fragments.
type Answer struct {
	Question string
	Session  *Session
	Sources  []domain.Scored
	Stream   generation.Stream
}

// Options tunes the service.
type Options struct {
	TopK             int
	SummarySentences int
}

// Service owns the current Session and at most one in-flight answer.
type Service struct {
	chunker    *chunker.Chunker
	embedder   *embedding.Embedder
	retriever  *retriever.Retriever
	generator  generation.Generator
	summarizer *summarizer.FrequencySummarizer
	opts       Options
	logger     *slog.Logger

	session atomic.Pointer[Session]

	mu           sync.Mutex
	cancelActive context.CancelFunc
}

// New assembles a Service.
func New(ch *chunker.Chunker, emb *embedding.Embedder, gen generation.Generator, opts Options, logger *slog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = retriever.DefaultTopK
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunker:    ch,
		embedder:   emb,
		retriever:  retriever.New(emb, opts.TopK),
		generator:  gen,
		summarizer: summarizer.NewFrequencySummarizer(),
		opts:       opts,
		logger:     logger.With("component", "service"),
	}
}

// Current returns the active session, or nil before the first upload.
func (s *Service) Current() *Session {
	return s.session.Load()
}

// LoadFile reads path and loads it as the session document.
func (s *Service) LoadFile(ctx context.Context, path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("service: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("service: read %s: %w", path, err)
	}
	return s.load(ctx, abs, filepath.Base(abs), data)
}

// Load extracts, chunks and embeds a document and publishes it as the new
// session. Loading the document that is already active, same name and same
// bytes, returns the current session untouched. On error the previous
// session stays in place.
func (s *Service) Load(ctx context.Context, name string, data []byte) (*Session, error) {
	return s.load(ctx, name, name, data)
}

func (s *Service) load(ctx context.Context, source, name string, data []byte) (*Session, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if cur := s.Current(); cur != nil && cur.Source == source && cur.Digest == digest {
		return cur, nil
	}
	start := time.Now()
	text, err := extract.Text(name, data)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	passages := s.chunker.Chunk(id, text)
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	matrix := s.embedder.EmbedMany(ctx, texts)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("service: load %s: %w", name, err)
	}

	failed := 0
	for _, v := range matrix {
		if v.IsZero() {
			failed++
		}
	}
	sess := &Session{
		ID:        id,
		Name:      name,
		Source:    source,
		Digest:    digest,
		Text:      text,
		Passages:  passages,
		Matrix:    matrix,
		Summary:   s.summarizer.Summarize(text, s.opts.SummarySentences),
		CreatedAt: time.Now(),
	}
	// Nothing may keep streaming an answer about the old document.
	s.Cancel()
	s.session.Store(sess)
	s.logger.Info("document loaded",
		"session", id,
		"name", name,
		"source", source,
		"passages", len(passages),
		"zero_vectors", failed,
		"elapsed", time.Since(start),
	)
	return sess, nil
}

// Ask retrieves the passages most relevant to question and starts streaming
// an answer. Any answer still streaming from a previous Ask is cancelled.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	sess := s.Current()
	if sess == nil {
		return nil, domain.ErrNoDocument
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancelActive != nil {
		s.cancelActive()
	}
	s.cancelActive = cancel
	s.mu.Unlock()

	sources, err := s.retriever.Retrieve(ctx, question, sess.Passages, sess.Matrix, s.opts.TopK)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	s.logger.Debug("passages retrieved", "session", sess.ID, "sources", len(sources))

	prompt := generation.Prompt{Question: question, Context: make([]string, len(sources))}
	for i, src := range sources {
		prompt.Context[i] = src.Passage.Text
	}
	stream, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		cancel()
		if ctx.Err() != nil || errors.Is(err, domain.ErrGeneration) {
			return nil, err
		}
		return nil, &domain.GenerationError{Err: err}
	}
	return &Answer{Question: question, Session: sess, Sources: sources, Stream: stream}, nil
}

// Cancel stops the in-flight answer, if any.
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelActive != nil {
		s.cancelActive()
		s.cancelActive = nil
	}
}
