package voice

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en_US-lessac-medium", "en_US_lessac_medium"},
		{"de_DE--thorsten  low", "de_DE_thorsten_low"},
		{"-leading.and.trailing-", "leading_and_trailing"},
		{"zh_CN-中文", "zh_CN_zhong_wen"},
		{"中文voice", "zhong_wen_voice"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "en_US-lessac-medium.onnx")
	touch(t, dir, "en_US-lessac-medium.onnx.json")
	touch(t, dir, "de_DE-thorsten-low.onnx")
	touch(t, dir, "README.md")
	if err := os.Mkdir(filepath.Join(dir, "sub.onnx"), 0755); err != nil {
		t.Fatal(err)
	}

	descs, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 voices, got %d: %v", len(descs), descs)
	}
	// 按文件名排序
	if descs[0].ID != "de_DE_thorsten_low" || descs[1].ID != "en_US_lessac_medium" {
		t.Errorf("unexpected ids: %v", descs)
	}
	if descs[1].Path != filepath.Join(dir, "en_US-lessac-medium.onnx") {
		t.Errorf("unexpected path: %s", descs[1].Path)
	}
}

func TestDiscover_DuplicateIDKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a-b.onnx")
	touch(t, dir, "a_b.onnx")

	descs, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected 1 voice after dedupe, got %v", descs)
	}
	if filepath.Base(descs[0].Path) != "a-b.onnx" {
		t.Errorf("expected first file to win, got %s", descs[0].Path)
	}
}

func TestDiscover_MissingDir(t *testing.T) {
	descs, err := Discover(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not be an error: %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("expected empty catalog, got %v", descs)
	}
}
