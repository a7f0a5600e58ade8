package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 pispeak 的顶层配置结构。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Voices   VoicesConfig   `yaml:"voices"`
	Playback PlaybackConfig `yaml:"playback"`
	Stats    StatsConfig    `yaml:"stats"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ShutdownTimeout 优雅关闭等待时间（秒）。
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// VoicesConfig 语音模型配置。
type VoicesConfig struct {
	// Dir 启动时扫描 *.onnx 模型文件的目录。
	Dir string `yaml:"dir"`
	// Default 默认语音 ID，不在目录中时回退为第一个发现的语音。
	Default string `yaml:"default"`
	// Engine 推理后端: sherpa 或 piper。
	Engine string       `yaml:"engine"`
	Sherpa SherpaConfig `yaml:"sherpa"`
	Piper  PiperConfig  `yaml:"piper"`
	// Preload 启动时立即加载的语音 ID。
	Preload []string `yaml:"preload"`
}

// SherpaConfig sherpa-onnx 离线 TTS 配置。
type SherpaConfig struct {
	NumThreads int     `yaml:"num_threads"`
	Provider   string  `yaml:"provider"`
	Speed      float32 `yaml:"speed"`
	SpeakerID  int     `yaml:"speaker_id"`
	// DataDir espeak-ng-data 目录，为空时使用模型同目录下的 espeak-ng-data。
	DataDir string `yaml:"data_dir"`
	// MaxChars 每次推理合并的最大字符数。
	MaxChars int `yaml:"max_chars"`
}

// PiperConfig piper CLI 配置。
type PiperConfig struct {
	Binary string `yaml:"binary"`
	// ChunkBytes 每个音频帧的字节数。
	ChunkBytes int `yaml:"chunk_bytes"`
}

// PlaybackConfig 播放配置。
type PlaybackConfig struct {
	// Sink 播放后端: aplay 或 malgo。
	Sink   string `yaml:"sink"`
	Device string `yaml:"device"`
	// AplayBinary aplay 可执行文件路径。
	AplayBinary string `yaml:"aplay_binary"`
	// AplayArgs 追加到 aplay 命令行的参数，按 shell 规则拆分。
	AplayArgs string `yaml:"aplay_args"`
}

// StatsConfig 播报统计配置。
type StatsConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回全部使用默认值的配置，用于未提供配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Validate 检查枚举类配置项。
func (c *Config) Validate() error {
	switch c.Voices.Engine {
	case "sherpa", "piper":
	default:
		return fmt.Errorf("不支持的语音引擎: %s", c.Voices.Engine)
	}
	switch c.Playback.Sink {
	case "aplay", "malgo":
	default:
		return fmt.Errorf("不支持的播放后端: %s", c.Playback.Sink)
	}
	return nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "0.0.0.0:5000"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10
	}
	if cfg.Voices.Dir == "" {
		cfg.Voices.Dir = "./voices"
	}
	cfg.Voices.Dir = expandHome(cfg.Voices.Dir)
	if cfg.Voices.Engine == "" {
		cfg.Voices.Engine = "sherpa"
	}
	if cfg.Voices.Sherpa.NumThreads == 0 {
		cfg.Voices.Sherpa.NumThreads = 2
	}
	if cfg.Voices.Sherpa.Provider == "" {
		cfg.Voices.Sherpa.Provider = "cpu"
	}
	if cfg.Voices.Sherpa.Speed == 0 {
		cfg.Voices.Sherpa.Speed = 1.0
	}
	if cfg.Voices.Sherpa.MaxChars == 0 {
		cfg.Voices.Sherpa.MaxChars = 100
	}
	if cfg.Voices.Piper.Binary == "" {
		cfg.Voices.Piper.Binary = "piper"
	}
	if cfg.Voices.Piper.ChunkBytes == 0 {
		cfg.Voices.Piper.ChunkBytes = 4096
	}
	if cfg.Playback.Sink == "" {
		cfg.Playback.Sink = "aplay"
	}
	if cfg.Playback.Device == "" {
		cfg.Playback.Device = "plughw:1,0"
	}
	if cfg.Playback.AplayBinary == "" {
		cfg.Playback.AplayBinary = "aplay"
	}
	if cfg.Stats.DBPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Stats.DBPath = home + "/.pispeak/pispeak.db"
		} else {
			cfg.Stats.DBPath = "./pispeak.db"
		}
	}
	cfg.Stats.DBPath = expandHome(cfg.Stats.DBPath)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File)
}

// expandHome 将 ~/ 开头的路径替换为用户主目录，Go 不会自动展开 ~。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return home + path[1:]
}
