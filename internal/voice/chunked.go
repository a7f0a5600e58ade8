package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/iabetor/pispeak/internal/audio"
)

// errModelClosed 表示模型已被卸载释放。
var errModelClosed = errors.New("voice model closed")

// sampleGenerator 一次性把一段文本合成为单声道 float32 样本。
type sampleGenerator interface {
	Generate(text string) ([]float32, int, error)
	Close()
}

// chunkedModel 把文本按句切分，每段在 Next 时才推理，
// 从而让整段文本以惰性帧序列的形式产出。
type chunkedModel struct {
	maxChars int

	mu     sync.Mutex
	gen    sampleGenerator
	closed bool
}

func newChunkedModel(gen sampleGenerator, maxChars int) *chunkedModel {
	return &chunkedModel{gen: gen, maxChars: maxChars}
}

func (m *chunkedModel) Synthesize(ctx context.Context, text string) (Stream, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errModelClosed
	}
	return &chunkedStream{ctx: ctx, model: m, chunks: splitText(text, m.maxChars)}, nil
}

// generate 串行调用推理引擎，推理上下文不支持并发。
func (m *chunkedModel) generate(text string) ([]float32, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, 0, errModelClosed
	}
	return m.gen.Generate(text)
}

func (m *chunkedModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.gen.Close()
	return nil
}

type chunkedStream struct {
	ctx    context.Context
	model  *chunkedModel
	chunks []string
	next   int
	done   bool
}

func (s *chunkedStream) Next() (Frame, error) {
	for !s.done && s.next < len(s.chunks) {
		if err := s.ctx.Err(); err != nil {
			s.done = true
			return Frame{}, err
		}
		chunk := s.chunks[s.next]
		s.next++

		samples, rate, err := s.model.generate(chunk)
		if err != nil {
			s.done = true
			return Frame{}, fmt.Errorf("合成第 %d 段失败: %w", s.next, err)
		}
		if len(samples) == 0 {
			continue
		}
		return Frame{
			SampleRate:  rate,
			Channels:    1,
			SampleWidth: 2,
			PCM:         audio.Float32ToS16(samples),
		}, nil
	}
	s.done = true
	return Frame{}, io.EOF
}

func (s *chunkedStream) Close() error {
	s.done = true
	return nil
}
