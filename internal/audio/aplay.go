package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iabetor/pispeak/internal/logger"
	"github.com/mattn/go-shellwords"
)

// maxDiagnostic 限制保留的 aplay stderr 长度。
const maxDiagnostic = 4096

const waitDelay = 2 * time.Second

// AplayOpener 通过 aplay 子进程播放原始 PCM。
type AplayOpener struct {
	binary    string
	extraArgs []string
}

// NewAplayOpener 创建 aplay 播放端。
// extraArgs 按 shell 规则拆分后追加到命令行。
func NewAplayOpener(binary, extraArgs string) (*AplayOpener, error) {
	if binary == "" {
		binary = "aplay"
	}
	var extra []string
	if strings.TrimSpace(extraArgs) != "" {
		parsed, err := shellwords.Parse(extraArgs)
		if err != nil {
			return nil, fmt.Errorf("解析 aplay 参数失败: %w", err)
		}
		extra = parsed
	}
	return &AplayOpener{binary: binary, extraArgs: extra}, nil
}

// Args 返回给定参数对应的 aplay 命令行参数（不含可执行文件）。
func (o *AplayOpener) Args(p SinkParams) []string {
	args := []string{"-q"}
	if p.Device != "" {
		args = append(args, "-D", p.Device)
	}
	args = append(args,
		"-r", strconv.Itoa(p.SampleRate),
		"-f", string(p.Format),
		"-c", strconv.Itoa(p.Channels),
	)
	args = append(args, o.extraArgs...)
	return append(args, "-t", "raw", "-")
}

// Open 启动 aplay 进程并返回写入其 stdin 的 Sink。
// ctx 取消时进程会被强制结束。
func (o *AplayOpener) Open(ctx context.Context, p SinkParams) (Sink, error) {
	args := o.Args(p)
	cmd := exec.CommandContext(ctx, o.binary, args...)
	// 进程被杀后不再无限等待子进程持有的 stderr
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkLaunchFailed, err)
	}
	s := &aplaySink{cmd: cmd, stdin: stdin, device: p.Device}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSinkLaunchFailed, o.binary, err)
	}
	logger.Debugf("[audio] aplay 已启动: %s %s", o.binary, strings.Join(args, " "))
	return s, nil
}

type aplaySink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	device string

	once sync.Once
	err  error
}

func (s *aplaySink) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Close 关闭 stdin 后等待 aplay 播放完毕退出。
func (s *aplaySink) Close() error {
	s.once.Do(func() {
		_ = s.stdin.Close()
		if err := s.cmd.Wait(); err != nil {
			s.err = &PlaybackError{
				Device:     s.device,
				Diagnostic: s.diagnostic(),
				Err:        err,
			}
		}
	})
	return s.err
}

func (s *aplaySink) Abort() {
	s.once.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.stdin.Close()
		_ = s.cmd.Wait()
		s.err = &PlaybackError{Device: s.device, Diagnostic: "aborted"}
		logger.Warnf("[audio] aplay 已被强制终止 (device=%s)", s.device)
	})
}

// diagnostic 只能在 Wait 返回后调用。
func (s *aplaySink) diagnostic() string {
	d := strings.TrimSpace(s.stderr.String())
	if len(d) > maxDiagnostic {
		d = d[len(d)-maxDiagnostic:]
	}
	return d
}
