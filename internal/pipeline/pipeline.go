package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iabetor/pispeak/internal/audio"
	"github.com/iabetor/pispeak/internal/logger"
	"github.com/iabetor/pispeak/internal/voice"
	"go.uber.org/zap"
)

// Voices 是流水线依赖的语音注册表能力。
type Voices interface {
	Default() (string, error)
	Get(id string) (*voice.Handle, error)
}

// Request 是一次播报请求。Voice、Device 为空时使用默认值。
type Request struct {
	Text      string
	Voice     string
	Device    string
	RequestID string
}

// Result 是播放成功后实际使用的音频格式。
type Result struct {
	Rate     int          `json:"rate"`
	Channels int          `json:"channels"`
	Format   audio.Format `json:"format"`
}

// Outcome 汇总一次请求的结果，供统计使用。
type Outcome struct {
	Voice   string
	Device  string
	Kind    Kind
	Err     error
	Result  Result
	Frames  int
	Bytes   int64
	Elapsed time.Duration
	Final   State
}

// Option 配置 Pipeline。
type Option func(*Pipeline)

// WithObserver 注册请求结束回调。
func WithObserver(fn func(Outcome)) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, fn) }
}

// Pipeline 把一段文本合成并完整播放到指定设备。
// 同一设备同一时间只有一个请求在合成和播放，不同设备可以并行。
type Pipeline struct {
	voices        Voices
	sinks         audio.SinkOpener
	defaultDevice string
	locks         *deviceLocks
	observers     []func(Outcome)
}

// New 创建流水线。
func New(voices Voices, sinks audio.SinkOpener, defaultDevice string, opts ...Option) *Pipeline {
	p := &Pipeline{
		voices:        voices,
		sinks:         sinks,
		defaultDevice: defaultDevice,
		locks:         newDeviceLocks(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run 是单次请求的执行状态，用完即弃。
type run struct {
	sm  *StateMachine
	log *zap.SugaredLogger
	out Outcome
}

func (r *run) fail(err error) error {
	r.sm.Transition(StateFailed)
	r.out.Err = err
	return err
}

// Speak 合成 text 并阻塞直到播放结束。
// ctx 取消时停止拉取音频帧并强制关闭播放端。
func (p *Pipeline) Speak(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	r := &run{
		sm:  NewStateMachine(),
		log: logger.With("request_id", req.RequestID),
	}
	r.sm.SetOnChange(func(from, to State) {
		r.log.Debugf("[pipeline] %s → %s", from, to)
	})
	defer func() {
		r.out.Kind = Classify(r.out.Err)
		r.out.Elapsed = time.Since(start)
		r.out.Final = r.sm.Current()
		for _, fn := range p.observers {
			fn(r.out)
		}
	}()

	res, err := p.speak(ctx, req, r)
	if err != nil {
		r.log.Warnf("[pipeline] 播报失败 (voice=%s, device=%s, state=%s): %v", r.out.Voice, r.out.Device, r.sm.Current(), err)
		return Result{}, err
	}
	r.log.Infof("[pipeline] 播报完成 (voice=%s, device=%s, %d 帧 %d 字节, 耗时 %v)",
		r.out.Voice, r.out.Device, r.out.Frames, r.out.Bytes, time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) speak(ctx context.Context, req Request, r *run) (Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, r.fail(ErrEmptyText)
	}

	r.sm.Transition(StateResolving)
	voiceID := req.Voice
	if voiceID == "" {
		id, err := p.voices.Default()
		if err != nil {
			return Result{}, r.fail(err)
		}
		voiceID = id
	}
	r.out.Voice = voiceID

	h, err := p.voices.Get(voiceID)
	if err != nil {
		return Result{}, r.fail(err)
	}
	defer h.Release()

	device := req.Device
	if device == "" {
		device = p.defaultDevice
	}
	r.out.Device = device

	unlock, err := p.locks.acquire(ctx, device)
	if err != nil {
		return Result{}, r.fail(fmt.Errorf("等待设备 %s: %w", device, err))
	}
	defer unlock()

	r.sm.Transition(StateSynthesizing)
	stream, err := h.Model().Synthesize(ctx, text)
	if err != nil {
		return Result{}, r.fail(fmt.Errorf("语音 %s 合成失败: %w", voiceID, err))
	}
	defer stream.Close()

	first, err := stream.Next()
	if err == io.EOF {
		return Result{}, r.fail(ErrNoAudioProduced)
	}
	if err != nil {
		return Result{}, r.fail(fmt.Errorf("语音 %s 合成失败: %w", voiceID, err))
	}

	format, err := audio.FormatForWidth(first.SampleWidth)
	if err != nil {
		return Result{}, r.fail(err)
	}
	r.sm.Transition(StateFormatKnown)

	sink, err := p.sinks.Open(ctx, audio.SinkParams{
		Device:     device,
		SampleRate: first.SampleRate,
		Format:     format,
		Channels:   first.Channels,
	})
	if err != nil {
		return Result{}, r.fail(err)
	}

	r.sm.Transition(StateStreaming)
	if err := p.pump(ctx, sink, stream, first, r); err != nil {
		return Result{}, r.fail(err)
	}

	r.sm.Transition(StateDraining)
	if err := sink.Close(); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Result{}, r.fail(fmt.Errorf("%w: %w", cerr, err))
		}
		return Result{}, r.fail(err)
	}
	r.sm.Transition(StateDone)

	if h.SetMeta(voice.MetaOf(first)) {
		r.log.Debugf("[pipeline] 语音 %s 格式: rate=%d channels=%d width=%d",
			voiceID, first.SampleRate, first.Channels, first.SampleWidth)
	}

	res := Result{Rate: first.SampleRate, Channels: first.Channels, Format: format}
	r.out.Result = res
	return res, nil
}

// pump 按产出顺序把第一帧及后续帧写入播放端。
// 出错时播放端已被关闭或中止。
func (p *Pipeline) pump(ctx context.Context, sink audio.Sink, stream voice.Stream, first voice.Frame, r *run) error {
	want := voice.MetaOf(first)
	frame := first
	for {
		if len(frame.PCM) > 0 {
			n, err := sink.Write(frame.PCM)
			r.out.Bytes += int64(n)
			if err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return canceled(sink, cerr, err)
				}
				return writeFailed(sink, r.out.Device, err)
			}
		}
		r.out.Frames++

		if err := ctx.Err(); err != nil {
			sink.Abort()
			return err
		}
		next, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return canceled(sink, cerr, err)
			}
			sink.Abort()
			return fmt.Errorf("语音 %s 合成失败: %w", r.out.Voice, err)
		}
		if got := voice.MetaOf(next); got != want {
			sink.Abort()
			return fmt.Errorf("%w: %+v → %+v", ErrFormatChanged, want, got)
		}
		frame = next
	}
}

// canceled 在请求取消导致写入或拉帧失败时中止播放端。
// 返回的错误同时包含取消原因和底层错误。
func canceled(sink audio.Sink, cause, err error) error {
	sink.Abort()
	if errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}

// writeFailed 在写入失败后收集播放端的诊断信息。
func writeFailed(sink audio.Sink, device string, werr error) error {
	if err := sink.Close(); err != nil {
		return err
	}
	var pe *audio.PlaybackError
	if errors.As(werr, &pe) {
		return werr
	}
	return &audio.PlaybackError{Device: device, Err: werr}
}
