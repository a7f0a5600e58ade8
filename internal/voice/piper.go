package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/iabetor/pispeak/internal/logger"
)

// piperDefaultSampleRate 是 piper 模型未声明采样率时的默认值。
const piperDefaultSampleRate = 22050

// piperVoiceConfig 是 <model>.onnx.json 中用到的字段。
type piperVoiceConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

// readPiperSampleRate 读取模型旁的 JSON 配置获取采样率。
func readPiperSampleRate(modelPath string) int {
	data, err := os.ReadFile(modelPath + ".json")
	if err != nil {
		return piperDefaultSampleRate
	}
	var cfg piperVoiceConfig
	if err := json.Unmarshal(data, &cfg); err != nil || cfg.Audio.SampleRate <= 0 {
		logger.Warnf("[voice] 解析 %s.json 失败，使用默认采样率 %d", modelPath, piperDefaultSampleRate)
		return piperDefaultSampleRate
	}
	return cfg.Audio.SampleRate
}

// PiperModel 使用 piper CLI 子进程合成，stdout 的 S16_LE 单声道 PCM
// 按固定大小切块，边合成边产出。
type PiperModel struct {
	binary     string
	modelPath  string
	sampleRate int
	chunkBytes int
}

// NewPiperLoader 返回使用 piper CLI 的 Loader。
func NewPiperLoader(binary string, chunkBytes int) Loader {
	if chunkBytes <= 0 {
		chunkBytes = 4096
	}
	// 保证按采样对齐
	chunkBytes -= chunkBytes % 2
	return func(id, path string) (Model, error) {
		if _, err := exec.LookPath(binary); err != nil {
			return nil, fmt.Errorf("找不到 piper 可执行文件 %s: %w", binary, err)
		}
		m := &PiperModel{
			binary:     binary,
			modelPath:  path,
			sampleRate: readPiperSampleRate(path),
			chunkBytes: chunkBytes,
		}
		logger.Debugf("[voice] piper 语音 %s 已就绪 (rate=%d)", id, m.sampleRate)
		return m, nil
	}
}

// Synthesize 启动 piper 进程，文本经 stdin 传入。
func (p *PiperModel) Synthesize(ctx context.Context, text string) (Stream, error) {
	cmd := exec.CommandContext(ctx, p.binary, "--model", p.modelPath, "--output-raw")
	cmd.Stdin = strings.NewReader(text)
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("piper stdout: %w", err)
	}
	s := &piperStream{cmd: cmd, stdout: stdout, buf: make([]byte, p.chunkBytes), rate: p.sampleRate}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("piper 启动失败: %w", err)
	}
	logger.Debugf("[voice] piper: 正在合成 %d 个字符，模型=%s", len([]rune(text)), p.modelPath)
	return s, nil
}

// Close 无常驻资源。
func (p *PiperModel) Close() error { return nil }

type piperStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	buf    []byte
	rate   int

	finished bool
	err      error
}

func (s *piperStream) Next() (Frame, error) {
	if s.finished {
		if s.err != nil {
			return Frame{}, s.err
		}
		return Frame{}, io.EOF
	}

	n, err := io.ReadFull(s.stdout, s.buf)
	if n > 0 {
		if err != nil {
			// 最后一块不足 chunkBytes，下次 Next 再收尾
			if err == io.ErrUnexpectedEOF {
				err = nil
			}
		}
		if err == nil {
			pcm := make([]byte, n)
			copy(pcm, s.buf[:n])
			return Frame{SampleRate: s.rate, Channels: 1, SampleWidth: 2, PCM: pcm}, nil
		}
	}
	if err != nil && err != io.EOF {
		s.finish()
		s.err = fmt.Errorf("读取 piper 输出失败: %w", err)
		return Frame{}, s.err
	}
	if werr := s.finish(); werr != nil {
		return Frame{}, werr
	}
	return Frame{}, io.EOF
}

// finish 等待进程退出，进程失败时记录 stderr。
func (s *piperStream) finish() error {
	if s.finished {
		return s.err
	}
	s.finished = true
	if err := s.cmd.Wait(); err != nil {
		s.err = fmt.Errorf("piper 执行失败: %w, stderr: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return s.err
}

// Close 放弃剩余输出并结束进程。
func (s *piperStream) Close() error {
	if s.finished {
		return nil
	}
	s.finished = true
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
