// Package metrics 提供 pispeak 的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pispeak"

// Metrics 持有全部采集器，注册在独立的 Registry 上。
type Metrics struct {
	registry *prometheus.Registry

	speakTotal    *prometheus.CounterVec
	speakDuration *prometheus.HistogramVec
	speakBytes    *prometheus.CounterVec
	loadTotal     *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
}

// New 创建并注册指标。loadedVoices 为 nil 时不导出已加载语音数。
func New(loadedVoices func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		speakTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speak_requests_total",
				Help:      "Total number of speak requests",
			},
			[]string{"voice", "status"},
		),
		speakDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "speak_duration_seconds",
				Help:      "Time from request to end of playback in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"voice", "status"},
		),
		speakBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speak_bytes_total",
				Help:      "Total PCM bytes written to playback sinks",
			},
			[]string{"voice", "device"},
		),
		loadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voice_loads_total",
				Help:      "Total number of voice model loads",
			},
			[]string{"voice", "status"}, // status: success, error
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "voice_load_duration_seconds",
				Help:      "Duration of voice model loads in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"voice"},
		),
	}

	m.registry.MustRegister(
		m.speakTotal,
		m.speakDuration,
		m.speakBytes,
		m.loadTotal,
		m.loadDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if loadedVoices != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "voices_loaded",
				Help:      "Number of voice models currently loaded",
			},
			func() float64 { return float64(loadedVoices()) },
		))
	}
	return m
}

// RecordSpeak 记录一次播报请求的结果。
func (m *Metrics) RecordSpeak(voice, device, status string, elapsed time.Duration, bytes int64) {
	if voice == "" {
		voice = "none"
	}
	m.speakTotal.WithLabelValues(voice, status).Inc()
	m.speakDuration.WithLabelValues(voice, status).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.speakBytes.WithLabelValues(voice, device).Add(float64(bytes))
	}
}

// RecordLoad 记录一次模型加载。
func (m *Metrics) RecordLoad(voice string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.loadTotal.WithLabelValues(voice, status).Inc()
	m.loadDuration.WithLabelValues(voice).Observe(elapsed.Seconds())
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
