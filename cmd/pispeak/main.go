package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/pispeak/internal/audio"
	"github.com/iabetor/pispeak/internal/config"
	"github.com/iabetor/pispeak/internal/database"
	"github.com/iabetor/pispeak/internal/logger"
	"github.com/iabetor/pispeak/internal/metrics"
	"github.com/iabetor/pispeak/internal/pipeline"
	"github.com/iabetor/pispeak/internal/server"
	"github.com/iabetor/pispeak/internal/voice"
)

func main() {
	configPath := flag.String("config", "configs/pispeak.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] PiSpeak 启动中 (engine=%s, sink=%s, log_level=%s)",
		cfg.Voices.Engine, cfg.Playback.Sink, cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logger.Errorf("[main] 运行出错: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("[main] PiSpeak 已停止")
}

// loadConfig 读取配置文件，文件不存在时使用默认配置。
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "配置文件 %s 不存在，使用默认配置\n", path)
		return config.Default(), nil
	}
	return nil, err
}

func run(ctx context.Context, cfg *config.Config) error {
	descs, err := voice.Discover(cfg.Voices.Dir)
	if err != nil {
		return fmt.Errorf("扫描语音目录失败: %w", err)
	}

	var (
		stats *database.StatsStore
		m     *metrics.Metrics
		reg   *voice.Registry
	)
	if cfg.Stats.Enabled {
		db, err := database.Open(cfg.Stats.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}
		stats = database.NewStatsStore(db)
	}
	m = metrics.New(func() int { return len(reg.LoadedIDs()) })

	reg = voice.NewRegistry(newLoader(cfg), descs,
		voice.WithDefault(cfg.Voices.Default),
		voice.WithLoadHook(func(id string, elapsed time.Duration, err error) {
			m.RecordLoad(id, elapsed, err)
			if stats != nil {
				if serr := stats.RecordLoad(id, elapsed, err); serr != nil {
					logger.Warnf("[main] %v", serr)
				}
			}
		}),
	)
	defer reg.Close()

	for _, id := range cfg.Voices.Preload {
		if err := reg.Load(id, ""); err != nil {
			logger.Warnf("[main] 预加载语音 %s 失败: %v", id, err)
		}
	}

	sinks, closeSinks, err := newSinkOpener(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	p := pipeline.New(reg, sinks, cfg.Playback.Device,
		pipeline.WithObserver(func(o pipeline.Outcome) {
			m.RecordSpeak(o.Voice, o.Device, string(o.Kind), o.Elapsed, o.Bytes)
			if stats != nil {
				if err := stats.RecordSpeak(o.Voice, string(o.Kind), o.Bytes, time.Now()); err != nil {
					logger.Warnf("[main] %v", err)
				}
			}
		}),
	)

	opts := []server.Option{
		server.WithMetrics(m.Handler()),
		server.WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second),
	}
	if stats != nil {
		opts = append(opts, server.WithStats(stats))
	}
	return server.New(cfg.Server.Addr, p, reg, opts...).Run(ctx)
}

func newLoader(cfg *config.Config) voice.Loader {
	if cfg.Voices.Engine == "piper" {
		return voice.NewPiperLoader(cfg.Voices.Piper.Binary, cfg.Voices.Piper.ChunkBytes)
	}
	sc := cfg.Voices.Sherpa
	return voice.NewSherpaLoader(voice.SherpaOptions{
		NumThreads: sc.NumThreads,
		Provider:   sc.Provider,
		Speed:      sc.Speed,
		SpeakerID:  sc.SpeakerID,
		DataDir:    sc.DataDir,
		MaxChars:   sc.MaxChars,
	})
}

func newSinkOpener(cfg *config.Config) (audio.SinkOpener, func(), error) {
	if cfg.Playback.Sink == "malgo" {
		o, err := audio.NewMalgoOpener()
		if err != nil {
			return nil, nil, err
		}
		return o, o.Close, nil
	}
	o, err := audio.NewAplayOpener(cfg.Playback.AplayBinary, cfg.Playback.AplayArgs)
	if err != nil {
		return nil, nil, err
	}
	return o, func() {}, nil
}
