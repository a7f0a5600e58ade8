package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/pispeak/internal/logger"
	"github.com/iabetor/pispeak/internal/pipeline"
	"github.com/iabetor/pispeak/internal/voice"
)

const (
	// maxBodyBytes 限制请求体大小。
	maxBodyBytes = 1 << 20
	// defaultRecentLoads 是 /stats 默认返回的加载记录条数。
	defaultRecentLoads = 20
)

type speakRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Device string `json:"device"`
}

type speakResponse struct {
	OK bool `json:"ok"`
	pipeline.Result
}

type loadRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type voicesResponse struct {
	Default   *string                `json:"default"`
	Loaded    map[string]*voice.Meta `json:"loaded"`
	Available map[string]string      `json:"available"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	req := parseSpeakRequest(w, r)
	res, err := s.speaker.Speak(r.Context(), pipeline.Request{
		Text:      req.Text,
		Voice:     req.Voice,
		Device:    req.Device,
		RequestID: RequestID(r.Context()),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, speakResponse{OK: true, Result: res})
}

// parseSpeakRequest 依次尝试 JSON、表单、查询参数和原始请求体。
// JSON 解析失败按空文本处理。
func parseSpeakRequest(w http.ResponseWriter, r *http.Request) speakRequest {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var req speakRequest
	switch ct {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return speakRequest{}
		}
		return req
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if ct == "multipart/form-data" {
			_ = r.ParseMultipartForm(maxBodyBytes)
		} else {
			_ = r.ParseForm()
		}
		req.Text = r.PostFormValue("text")
		req.Voice = r.PostFormValue("voice")
		req.Device = r.PostFormValue("device")
	}

	q := r.URL.Query()
	if req.Text == "" {
		req.Text = q.Get("text")
	}
	if req.Voice == "" {
		req.Voice = q.Get("voice")
	}
	if req.Device == "" {
		req.Device = q.Get("device")
	}
	if req.Text == "" && ct != "application/x-www-form-urlencoded" && ct != "multipart/form-data" {
		body, _ := io.ReadAll(r.Body)
		req.Text = string(body)
	}
	return req
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	snap := s.voices.List()
	resp := voicesResponse{Loaded: snap.Loaded, Available: snap.Available}
	if snap.Default != "" {
		d := snap.Default
		resp.Default = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing id"))
		return
	}

	if err := s.voices.Load(req.ID, req.Path); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, voice.ErrVoicePathNotFound) || errors.Is(err, voice.ErrVoiceNotFound) {
			status = http.StatusNotFound
		}
		logger.With("request_id", RequestID(r.Context())).Warnf("[server] 加载语音 %s 失败: %v", req.ID, err)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	unloaded := s.voices.Unload(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "unloaded": unloaded})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, errors.New("stats disabled"))
		return
	}
	q := r.URL.Query()
	days, ok := positiveParam(q.Get("days"), 7)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid days"))
		return
	}
	limit, ok := positiveParam(q.Get("loads"), defaultRecentLoads)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid loads"))
		return
	}

	since := time.Now().AddDate(0, 0, -(days - 1))
	stats, err := s.stats.SpeakStats(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	loads, err := s.stats.RecentLoads(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days, "stats": stats, "loads": loads})
}

// positiveParam 解析正整数查询参数，为空时返回 def。
func positiveParam(v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// statusFor 将播报错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch pipeline.Classify(err) {
	case pipeline.KindEmptyText, pipeline.KindNoDefaultVoice:
		return http.StatusBadRequest
	case pipeline.KindVoiceNotFound, pipeline.KindVoicePath:
		return http.StatusNotFound
	case pipeline.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[server] 写入响应失败: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
