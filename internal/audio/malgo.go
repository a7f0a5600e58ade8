package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/iabetor/pispeak/internal/logger"
)

const (
	// drainTimeout 是 Close 等待设备排空的上限。
	drainTimeout = 30 * time.Second

	periodFrames = 512
	periods      = 2
)

// MalgoOpener 使用 malgo (miniaudio) 在进程内播放原始 PCM。
type MalgoOpener struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// NewMalgoOpener 初始化 miniaudio 上下文。
func NewMalgoOpener() (*MalgoOpener, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}
	return &MalgoOpener{ctx: ctx}, nil
}

func malgoFormat(f Format) (malgo.FormatType, error) {
	switch f {
	case FormatU8:
		return malgo.FormatU8, nil
	case FormatS16LE:
		return malgo.FormatS16, nil
	case FormatS32LE:
		return malgo.FormatS32, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("%w: format=%s", ErrUnsupportedSampleWidth, f)
}

// Open 打开播放设备。device 为空或 "default" 时使用系统默认设备，
// 否则按设备名匹配。
func (o *MalgoOpener) Open(ctx context.Context, p SinkParams) (Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, fmt.Errorf("%w: 播放器已关闭", ErrSinkLaunchFailed)
	}

	format, err := malgoFormat(p.Format)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(p.Channels)
	deviceConfig.SampleRate = uint32(p.SampleRate)
	deviceConfig.PeriodSizeInFrames = periodFrames
	deviceConfig.Periods = periods

	if p.Device != "" && p.Device != "default" {
		infos, err := o.ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, fmt.Errorf("%w: 枚举播放设备失败: %v", ErrSinkLaunchFailed, err)
		}
		found := false
		for i := range infos {
			if infos[i].Name() == p.Device {
				deviceConfig.Playback.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			logger.Warnf("[audio] 未找到播放设备 %q，使用默认设备", p.Device)
		}
	}

	s := newMalgoSink(ctx, p.Device, p.Format.Width()*p.Channels)
	device, err := malgo.InitDevice(o.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		return nil, fmt.Errorf("%w: 初始化播放设备失败: %v", ErrSinkLaunchFailed, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: 启动播放设备失败: %v", ErrSinkLaunchFailed, err)
	}
	s.device = device
	return s, nil
}

// Close 释放 miniaudio 上下文。
func (o *MalgoOpener) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.ctx != nil {
		_ = o.ctx.Uninit()
		o.ctx.Free()
		o.ctx = nil
	}
}

// malgoSink 将 Write 的数据块通过有界通道交给设备回调。
type malgoSink struct {
	ctx        context.Context
	name       string
	frameBytes int
	device     *malgo.Device

	chunks  chan []byte
	pending []byte
	eof     bool
	tail    int
	done    chan struct{}
	doneOne sync.Once

	mu       sync.Mutex
	closed   bool
	finished bool
	err      error
}

func newMalgoSink(ctx context.Context, name string, frameBytes int) *malgoSink {
	return &malgoSink{
		ctx:        ctx,
		name:       name,
		frameBytes: frameBytes,
		chunks:     make(chan []byte, 4),
		done:       make(chan struct{}),
	}
}

// onData 在音频线程中调用，不能阻塞。
func (s *malgoSink) onData(out, _ []byte, frameCount uint32) {
	need := int(frameCount) * s.frameBytes
	if need > len(out) {
		need = len(out)
	}
	n := 0
	for n < need {
		if len(s.pending) == 0 {
			if s.eof {
				break
			}
			select {
			case b, ok := <-s.chunks:
				if !ok {
					s.eof = true
					continue
				}
				s.pending = b
			default:
			}
			if len(s.pending) == 0 {
				// 数据未到达，本周期剩余部分填静音
				break
			}
		}
		c := copy(out[n:need], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	for i := n; i < need; i++ {
		out[i] = 0
	}
	// 最后的数据还在设备缓冲中，再等 periods 个静音周期才算排空
	if s.eof && len(s.pending) == 0 {
		s.tail++
		if s.tail > periods {
			s.doneOne.Do(func() { close(s.done) })
		}
	}
}

func (s *malgoSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("write to closed sink")
	}
	s.mu.Unlock()

	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case s.chunks <- buf:
		return len(p), nil
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	}
}

// Close 结束输入并等待回调播放完剩余数据。
func (s *malgoSink) Close() error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return s.err
	}
	s.closed = true
	s.finished = true
	s.mu.Unlock()

	close(s.chunks)
	select {
	case <-s.done:
	case <-s.ctx.Done():
		s.err = &PlaybackError{Device: s.name, Err: s.ctx.Err()}
	case <-time.After(drainTimeout):
		s.err = &PlaybackError{Device: s.name, Diagnostic: "drain timeout"}
	}
	s.release()
	return s.err
}

func (s *malgoSink) Abort() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.finished = true
	s.err = &PlaybackError{Device: s.name, Diagnostic: "aborted"}
	s.mu.Unlock()

	s.release()
	close(s.chunks)
	logger.Warnf("[audio] 播放已中止 (device=%s)", s.name)
}

func (s *malgoSink) release() {
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
}
