package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/iabetor/pispeak/internal/database"
	"github.com/iabetor/pispeak/internal/logger"
	"github.com/iabetor/pispeak/internal/pipeline"
	"github.com/iabetor/pispeak/internal/voice"
)

// Speaker 执行一次合成播放。
type Speaker interface {
	Speak(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Voices 是 HTTP 层使用的语音管理能力。
type Voices interface {
	List() voice.Snapshot
	Load(id, path string) error
	Unload(id string) bool
}

// StatsReader 提供播报统计与加载记录查询。
type StatsReader interface {
	SpeakStats(since time.Time) ([]database.SpeakStat, error)
	RecentLoads(limit int) ([]database.VoiceLoad, error)
}

// Option 配置 Server。
type Option func(*Server)

// WithMetrics 挂载 /metrics 处理器。
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithStats 启用 /stats。
func WithStats(r StatsReader) Option {
	return func(s *Server) { s.stats = r }
}

// WithShutdownTimeout 设置优雅退出的最长等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// Server 是 pispeak 的 HTTP 入口。
type Server struct {
	addr            string
	speaker         Speaker
	voices          Voices
	metrics         http.Handler
	stats           StatsReader
	shutdownTimeout time.Duration

	draining atomic.Bool
}

// New 创建 Server。
func New(addr string, speaker Speaker, voices Voices, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		speaker:         speaker,
		voices:          voices,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回带请求 ID 与访问日志的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /speak", s.handleSpeak)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("POST /voices/load", s.handleLoad)
	mux.HandleFunc("DELETE /voices/{id}", s.handleUnload)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return withRequestID(mux)
}

// Run 监听地址并阻塞，直到 ctx 取消后完成优雅退出。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上提供服务，直到 ctx 取消。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Infof("[server] 正在监听 http://%s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.draining.Store(true)
	logger.Info("[server] 正在关闭，等待进行中的播报结束")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[server] 优雅关闭超时，强制断开: %v", err)
		_ = srv.Close()
	}
	<-errCh
	logger.Info("[server] 已关闭")
	return nil
}
