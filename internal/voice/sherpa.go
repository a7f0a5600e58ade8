package voice

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/pispeak/internal/logger"
	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaOptions 是 sherpa-onnx 离线 TTS 的推理参数。
type SherpaOptions struct {
	NumThreads int
	Provider   string
	Speed      float32
	SpeakerID  int
	// DataDir espeak-ng-data 目录，为空时使用模型同目录下的 espeak-ng-data。
	DataDir  string
	MaxChars int
}

// offlineTts 包装 sherpa.OfflineTts。
type offlineTts struct {
	tts   *sherpa.OfflineTts
	sid   int
	speed float32
}

func (o *offlineTts) Generate(text string) ([]float32, int, error) {
	generated := o.tts.Generate(text, o.sid, o.speed)
	if generated == nil {
		return nil, 0, fmt.Errorf("sherpa-onnx 未返回音频")
	}
	return generated.Samples, generated.SampleRate, nil
}

func (o *offlineTts) Close() {
	if o.tts != nil {
		sherpa.DeleteOfflineTts(o.tts)
		o.tts = nil
	}
}

// NewSherpaLoader 返回使用 sherpa-onnx 加载 VITS/Piper 模型的 Loader。
// 模型同目录下需要 tokens.txt；lexicon.txt 可选。
func NewSherpaLoader(opts SherpaOptions) Loader {
	return func(id, path string) (Model, error) {
		dir := filepath.Dir(path)

		tokens := filepath.Join(dir, "tokens.txt")
		if _, err := os.Stat(tokens); err != nil {
			return nil, fmt.Errorf("语音 %s 缺少 tokens.txt: %w", id, err)
		}

		config := sherpa.OfflineTtsConfig{}
		config.Model.Vits.Model = path
		config.Model.Vits.Tokens = tokens
		config.Model.Vits.NoiseScale = 0.667
		config.Model.Vits.NoiseScaleW = 0.8
		config.Model.Vits.LengthScale = 1.0
		if lexicon := filepath.Join(dir, "lexicon.txt"); fileExists(lexicon) {
			config.Model.Vits.Lexicon = lexicon
		}
		dataDir := opts.DataDir
		if dataDir == "" {
			dataDir = filepath.Join(dir, "espeak-ng-data")
		}
		if fileExists(dataDir) {
			config.Model.Vits.DataDir = dataDir
		}
		config.Model.NumThreads = opts.NumThreads
		config.Model.Provider = opts.Provider
		config.MaxNumSentences = 1

		tts := sherpa.NewOfflineTts(&config)
		if tts == nil {
			return nil, fmt.Errorf("创建 sherpa-onnx TTS 失败: %s", path)
		}
		logger.Debugf("[voice] sherpa-onnx 模型 %s 已就绪 (threads=%d, provider=%s)", id, opts.NumThreads, opts.Provider)

		speed := opts.Speed
		if speed <= 0 {
			speed = 1.0
		}
		gen := &offlineTts{tts: tts, sid: opts.SpeakerID, speed: speed}
		return newChunkedModel(gen, opts.MaxChars), nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
