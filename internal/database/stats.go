package database

import (
	"fmt"
	"time"
)

// SpeakStat 是某一天某个语音某种结果的累计。
type SpeakStat struct {
	Voice  string `json:"voice"`
	Date   string `json:"date"`
	Status string `json:"status"`
	Count  int    `json:"count"`
	Bytes  int64  `json:"bytes"`
}

// VoiceLoad 是一次模型加载记录。
type VoiceLoad struct {
	Voice     string    `json:"voice"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// StatsStore 记录播报与加载统计。
type StatsStore struct {
	db *DB
}

// NewStatsStore 创建统计存储，调用前需已执行 Migrate。
func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{db: db}
}

const dateLayout = "2006-01-02"

// RecordSpeak 累加一次播报结果。
func (s *StatsStore) RecordSpeak(voice, status string, bytes int64, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO speak_stats (voice, date, status, count, bytes)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(voice, date, status) DO UPDATE SET
			count = count + 1,
			bytes = bytes + excluded.bytes`,
		voice, at.Format(dateLayout), status, bytes)
	if err != nil {
		return fmt.Errorf("写入播报统计失败: %w", err)
	}
	return nil
}

// RecordLoad 记录一次模型加载，loadErr 为空表示成功。
func (s *StatsStore) RecordLoad(voice string, elapsed time.Duration, loadErr error) error {
	msg := ""
	if loadErr != nil {
		msg = loadErr.Error()
	}
	_, err := s.db.Exec(`INSERT INTO voice_loads (voice, elapsed_ms, error) VALUES (?, ?, ?)`,
		voice, elapsed.Milliseconds(), msg)
	if err != nil {
		return fmt.Errorf("写入加载记录失败: %w", err)
	}
	return nil
}

// SpeakStats 返回 since 当天及之后的播报统计，按日期倒序。
func (s *StatsStore) SpeakStats(since time.Time) ([]SpeakStat, error) {
	rows, err := s.db.Query(`SELECT voice, date, status, count, bytes FROM speak_stats
		WHERE date >= ? ORDER BY date DESC, voice, status`, since.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("查询播报统计失败: %w", err)
	}
	defer rows.Close()

	stats := []SpeakStat{}
	for rows.Next() {
		var st SpeakStat
		if err := rows.Scan(&st.Voice, &st.Date, &st.Status, &st.Count, &st.Bytes); err != nil {
			return nil, fmt.Errorf("读取播报统计失败: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RecentLoads 返回最近 limit 条加载记录。
func (s *StatsStore) RecentLoads(limit int) ([]VoiceLoad, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT voice, elapsed_ms, error, loaded_at FROM voice_loads
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询加载记录失败: %w", err)
	}
	defer rows.Close()

	loads := []VoiceLoad{}
	for rows.Next() {
		var l VoiceLoad
		if err := rows.Scan(&l.Voice, &l.ElapsedMs, &l.Error, &l.LoadedAt); err != nil {
			return nil, fmt.Errorf("读取加载记录失败: %w", err)
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}
