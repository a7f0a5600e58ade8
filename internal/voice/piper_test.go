package voice

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fakePiper 写入一个模拟 piper --output-raw 的脚本。
func fakePiper(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestReadPiperSampleRate(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "voice.onnx")
	if got := readPiperSampleRate(model); got != piperDefaultSampleRate {
		t.Errorf("missing config: got %d", got)
	}
	if err := os.WriteFile(model+".json", []byte(`{"audio":{"sample_rate":16000}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if got := readPiperSampleRate(model); got != 16000 {
		t.Errorf("expected 16000, got %d", got)
	}
}

func TestPiperModel_StreamsChunks(t *testing.T) {
	bin := fakePiper(t, "cat > /dev/null\nhead -c 10000 /dev/zero\n")
	model := touch(t, t.TempDir(), "voice.onnx")

	m, err := NewPiperLoader(bin, 4096)("voice", model)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := m.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer s.Close()

	var sizes []int
	for {
		f, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if f.SampleRate != piperDefaultSampleRate || f.SampleWidth != 2 || f.Channels != 1 {
			t.Errorf("unexpected format %+v", f)
		}
		sizes = append(sizes, len(f.PCM))
	}
	want := []int{4096, 4096, 1808}
	if len(sizes) != len(want) {
		t.Fatalf("frame sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("frame %d: %d bytes, want %d", i, sizes[i], want[i])
		}
	}
}

func TestPiperModel_ProcessFailure(t *testing.T) {
	bin := fakePiper(t, "cat > /dev/null\necho 'model load failed' >&2\nexit 3\n")
	model := touch(t, t.TempDir(), "voice.onnx")

	m, _ := NewPiperLoader(bin, 4096)("voice", model)
	s, err := m.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, err := s.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected process error, got %v", err)
	}
}

func TestPiperModel_CloseAbandons(t *testing.T) {
	bin := fakePiper(t, "exec cat /dev/zero\n")
	model := touch(t, t.TempDir(), "voice.onnx")

	m, _ := NewPiperLoader(bin, 1024)("voice", model)
	s, _ := m.Synthesize(context.Background(), "hello")
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after Close, got %v", err)
	}
}

func TestNewPiperLoader_MissingBinary(t *testing.T) {
	model := touch(t, t.TempDir(), "voice.onnx")
	if _, err := NewPiperLoader(filepath.Join(t.TempDir(), "no-piper"), 0)("voice", model); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
