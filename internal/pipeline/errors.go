package pipeline

import (
	"context"
	"errors"

	"github.com/iabetor/pispeak/internal/audio"
	"github.com/iabetor/pispeak/internal/voice"
)

var (
	// ErrEmptyText 表示去除首尾空白后文本为空。
	ErrEmptyText = errors.New("empty text")
	// ErrNoAudioProduced 表示模型没有产出任何音频帧。
	ErrNoAudioProduced = errors.New("no audio produced")
	// ErrFormatChanged 表示同一次合成中途出现了与第一帧不同的格式。
	ErrFormatChanged = errors.New("audio format changed mid-stream")
)

// Kind 是错误分类，用于 HTTP 状态码映射与统计标签。
type Kind string

const (
	KindNone             Kind = "ok"
	KindEmptyText        Kind = "empty_text"
	KindVoiceNotFound    Kind = "voice_not_found"
	KindVoicePath        Kind = "voice_path_not_found"
	KindNoDefaultVoice   Kind = "no_default_voice"
	KindNoAudio          Kind = "no_audio_produced"
	KindUnsupportedWidth Kind = "unsupported_sample_width"
	KindFormatChanged    Kind = "format_changed"
	KindSinkLaunch       Kind = "sink_launch_failed"
	KindPlayback         Kind = "playback_failed"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// Classify 返回错误所属的分类。
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmptyText):
		return KindEmptyText
	case errors.Is(err, voice.ErrVoiceNotFound):
		return KindVoiceNotFound
	case errors.Is(err, voice.ErrVoicePathNotFound):
		return KindVoicePath
	case errors.Is(err, voice.ErrNoDefaultVoice):
		return KindNoDefaultVoice
	case errors.Is(err, ErrNoAudioProduced):
		return KindNoAudio
	case errors.Is(err, audio.ErrUnsupportedSampleWidth):
		return KindUnsupportedWidth
	case errors.Is(err, ErrFormatChanged):
		return KindFormatChanged
	case errors.Is(err, audio.ErrSinkLaunchFailed):
		return KindSinkLaunch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, audio.ErrPlaybackFailed):
		return KindPlayback
	}
	return KindInternal
}
