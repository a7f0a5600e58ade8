package voice

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/iabetor/pispeak/internal/logger"
	"github.com/mozillazg/go-pinyin"
)

// ModelExt 是语音模型文件的扩展名。
const ModelExt = ".onnx"

// Descriptor 描述目录中发现的一个语音模型文件。
type Descriptor struct {
	ID   string
	Path string
}

// Discover 扫描目录下的 *.onnx 模型文件，按文件名排序返回。
// 只建立目录，不加载模型。目录不存在时返回空结果。
func Discover(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("[voice] 语音目录不存在: %s", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("扫描语音目录 %s 失败: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ModelExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		id := NormalizeID(strings.TrimSuffix(name, ModelExt))
		if id == "" {
			logger.Warnf("[voice] 无法从文件名 %s 生成语音 ID，已跳过", name)
			continue
		}
		if prev, dup := seen[id]; dup {
			logger.Warnf("[voice] 语音 ID %s 重复 (%s 与 %s)，保留前者", id, prev, name)
			continue
		}
		seen[id] = name
		out = append(out, Descriptor{ID: id, Path: filepath.Join(dir, name)})
	}

	logger.Infof("[voice] 在 %s 发现 %d 个语音模型", dir, len(out))
	return out, nil
}

// NormalizeID 将文件名转换为语音 ID：
// 汉字转为拼音，连续的非字母数字字符合并为单个 "_"，并去掉首尾分隔符。
func NormalizeID(name string) string {
	args := pinyin.NewArgs()
	args.Style = pinyin.Normal

	var b strings.Builder
	sep := false
	emit := func(s string) {
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteString(s)
	}

	for _, r := range name {
		switch {
		case unicode.Is(unicode.Han, r):
			sep = true
			if py := pinyin.LazyPinyin(string(r), args); len(py) > 0 {
				emit(py[0])
				sep = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			emit(string(r))
		default:
			sep = true
		}
	}
	return b.String()
}
