package voice

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeModel 产出固定的帧序列。
type fakeModel struct {
	frames []Frame
	closed atomic.Bool
}

func (m *fakeModel) Synthesize(_ context.Context, _ string) (Stream, error) {
	return &sliceStream{frames: m.frames}, nil
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

type sliceStream struct {
	frames []Frame
	i      int
}

func (s *sliceStream) Next() (Frame, error) {
	if s.i >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

func (s *sliceStream) Close() error { return nil }

// countingLoader 记录每个路径被加载的次数。
type countingLoader struct {
	mu     sync.Mutex
	calls  map[string]int
	models []*fakeModel
	delay  time.Duration
}

func newCountingLoader() *countingLoader {
	return &countingLoader{calls: make(map[string]int)}
}

func (l *countingLoader) load(id, path string) (Model, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	m := &fakeModel{}
	l.mu.Lock()
	l.calls[path]++
	l.models = append(l.models, m)
	l.mu.Unlock()
	return m, nil
}

func (l *countingLoader) count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[path]
}

func (l *countingLoader) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// touch 创建空模型文件。
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("onnx"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
