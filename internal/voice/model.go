package voice

import (
	"context"
	"errors"
)

var (
	// ErrVoiceNotFound 表示语音 ID 未知，或其模型文件已不存在。
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrVoicePathNotFound 表示显式加载时给出的模型路径不存在。
	ErrVoicePathNotFound = errors.New("voice path not found")
	// ErrNoDefaultVoice 表示目录为空，无法选出默认语音。
	ErrNoDefaultVoice = errors.New("no default voice")
)

// Frame 是模型一次产出的一段音频，自带格式描述。
type Frame struct {
	SampleRate  int
	Channels    int
	SampleWidth int // 每个采样的字节数
	PCM         []byte
}

// Meta 是从真实音频帧观察到的语音格式。
type Meta struct {
	SampleRate  int `json:"rate"`
	Channels    int `json:"channels"`
	SampleWidth int `json:"sample_width"`
}

// MetaOf 返回帧的格式描述。
func MetaOf(f Frame) Meta {
	return Meta{SampleRate: f.SampleRate, Channels: f.Channels, SampleWidth: f.SampleWidth}
}

// Stream 是一次合成产生的有限、不可重启的惰性帧序列。
// 调用方必须读到 io.EOF 或者调用 Close 放弃剩余部分。
type Stream interface {
	// Next 返回下一帧，序列结束时返回 io.EOF。
	Next() (Frame, error)
	// Close 释放底层生成器，可重复调用。
	Close() error
}

// Model 是已加载的语音模型。
type Model interface {
	// Synthesize 为 text 创建新的帧序列，每次调用相互独立。
	Synthesize(ctx context.Context, text string) (Stream, error)
	// Close 释放模型持有的原生资源。
	Close() error
}

// Loader 从模型文件加载 Model，可能很慢并阻塞。
type Loader func(id, path string) (Model, error)
