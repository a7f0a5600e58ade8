package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrSinkLaunchFailed 表示播放进程或设备无法启动。
	ErrSinkLaunchFailed = errors.New("playback sink launch failed")
	// ErrPlaybackFailed 表示播放过程中或结束时出错。
	ErrPlaybackFailed = errors.New("playback failed")
)

// SinkParams 描述一次播放所需的原始 PCM 参数。
type SinkParams struct {
	Device     string
	SampleRate int
	Format     Format
	Channels   int
}

// Sink 是原始 PCM 音频的消费端。
// Write 会阻塞直到消费端接收数据，从而形成自然背压。
type Sink interface {
	io.Writer
	// Close 关闭输入并等待播放排空，失败时返回 *PlaybackError。
	Close() error
	// Abort 立即终止播放，不等待排空。
	Abort()
}

// SinkOpener 按参数打开一个 Sink。
type SinkOpener interface {
	Open(ctx context.Context, params SinkParams) (Sink, error)
}

// SinkOpenerFunc 让普通函数实现 SinkOpener。
type SinkOpenerFunc func(ctx context.Context, params SinkParams) (Sink, error)

// Open 调用 f。
func (f SinkOpenerFunc) Open(ctx context.Context, params SinkParams) (Sink, error) {
	return f(ctx, params)
}

// PlaybackError 携带播放端给出的诊断信息。
type PlaybackError struct {
	Device     string
	Diagnostic string
	Err        error
}

func (e *PlaybackError) Error() string {
	msg := fmt.Sprintf("playback failed on %s", e.Device)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += " (" + e.Diagnostic + ")"
	}
	return msg
}

// Unwrap 同时暴露 ErrPlaybackFailed 与底层错误，便于 errors.Is 判断。
func (e *PlaybackError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPlaybackFailed}
	}
	return []error{ErrPlaybackFailed, e.Err}
}
