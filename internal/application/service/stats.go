package service

import (
	"github.com/dustin/go-humanize"
)

// Stats キャッシュの状態
// ApproxSizeBytesはエントリ数×固定値の概算で、桁の目安としてのみ使う
type Stats struct {
	Total           int    `json:"total"`
	Expired         int    `json:"expired"`
	ApproxSizeBytes uint64 `json:"approx_size_bytes"`
}

// HumanSize 概算サイズを読みやすい形式で返す（例: "2.6 kB"）
func (s Stats) HumanSize() string {
	return humanize.Bytes(s.ApproxSizeBytes)
}

// Stats 現在のエントリ数・期限切れ数・概算サイズを返す
func (c *FactCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if e.IsExpired(now, c.ttl) {
			s.Expired++
		}
	}
	s.ApproxSizeBytes = uint64(s.Total) * uint64(c.approxEntrySize)
	return s
}
