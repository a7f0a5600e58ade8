package voice

import (
	"context"
	"errors"
	"io"
	"testing"
)

type fakeGenerator struct {
	texts  []string
	fail   string
	closed bool
}

func (g *fakeGenerator) Generate(text string) ([]float32, int, error) {
	g.texts = append(g.texts, text)
	if text == g.fail {
		return nil, 0, errors.New("inference failed")
	}
	if text == "silent." {
		return nil, 22050, nil
	}
	return make([]float32, len(text)), 22050, nil
}

func (g *fakeGenerator) Close() { g.closed = true }

func TestChunkedModel_LazyFrames(t *testing.T) {
	gen := &fakeGenerator{}
	m := newChunkedModel(gen, 5)

	s, err := m.Synthesize(context.Background(), "Hello. World.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(gen.texts) != 0 {
		t.Fatalf("no inference should run before Next, got %v", gen.texts)
	}

	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.SampleRate != 22050 || f.Channels != 1 || f.SampleWidth != 2 {
		t.Errorf("unexpected format: %+v", f)
	}
	if len(f.PCM) != len("Hello.")*2 {
		t.Errorf("expected %d bytes, got %d", len("Hello.")*2, len(f.PCM))
	}
	if len(gen.texts) != 1 {
		t.Errorf("expected one inference after first Next, got %d", len(gen.texts))
	}

	if _, err := s.Next(); err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestChunkedModel_SkipsEmptyChunks(t *testing.T) {
	m := newChunkedModel(&fakeGenerator{}, 1)
	s, _ := m.Synthesize(context.Background(), "silent. Hi.")
	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(f.PCM) != len("Hi.")*2 {
		t.Errorf("expected frame for second chunk, got %d bytes", len(f.PCM))
	}
}

func TestChunkedModel_GenerateError(t *testing.T) {
	m := newChunkedModel(&fakeGenerator{fail: "Bad."}, 1)
	s, _ := m.Synthesize(context.Background(), "Bad. Good.")
	if _, err := s.Next(); err == nil {
		t.Fatal("expected error from failing chunk")
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("stream should end after an error, got %v", err)
	}
}

func TestChunkedModel_ContextCancelled(t *testing.T) {
	m := newChunkedModel(&fakeGenerator{}, 100)
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := m.Synthesize(ctx, "Hello.")
	cancel()
	if _, err := s.Next(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChunkedModel_Close(t *testing.T) {
	gen := &fakeGenerator{}
	m := newChunkedModel(gen, 100)
	s, _ := m.Synthesize(context.Background(), "Hello.")
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !gen.closed {
		t.Error("generator should be closed")
	}
	if _, err := s.Next(); !errors.Is(err, errModelClosed) {
		t.Errorf("expected errModelClosed from open stream, got %v", err)
	}
	if _, err := m.Synthesize(context.Background(), "x"); !errors.Is(err, errModelClosed) {
		t.Errorf("expected errModelClosed, got %v", err)
	}
}

func TestChunkedModel_EmptyText(t *testing.T) {
	m := newChunkedModel(&fakeGenerator{}, 100)
	s, _ := m.Synthesize(context.Background(), "   ")
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected immediate io.EOF, got %v", err)
	}
}
