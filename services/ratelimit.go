package services

import (
	"strconv"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// RateLimitInfo holds the latest rate limit state reported by one provider.
type RateLimitInfo struct {
	Provider string `json:"provider"`

	LimitRequests     int    `json:"limit_requests"`
	RemainingRequests int    `json:"remaining_requests"`
	ResetRequests     string `json:"reset_requests"`     // e.g. "6m0s"
	ResetRequestsAt   *int64 `json:"reset_requests_at"` // unix ms, if parseable

	LimitTokens     int    `json:"limit_tokens"`
	RemainingTokens int    `json:"remaining_tokens"`
	ResetTokens     string `json:"reset_tokens"`
	ResetTokensAt   *int64 `json:"reset_tokens_at"`

	Throttled  bool   `json:"throttled"` // last call was answered with 429
	StatusCode int    `json:"status_code"`
	UpdatedAt  int64  `json:"updated_at"` // unix ms
	UpdatedAgo string `json:"updated_ago"`
}

// RateLimitTracker remembers what providers said about their limits. It only
// reports; nothing is throttled on its basis.
type RateLimitTracker struct {
	mu    sync.RWMutex
	store map[string]*RateLimitInfo
	now   func() time.Time
}

func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{store: map[string]*RateLimitInfo{}, now: time.Now}
}

// Update records the headers of a successful response.
func (t *RateLimitTracker) Update(provider string, h openai.RateLimitHeaders, statusCode int) {
	now := t.now()
	info := &RateLimitInfo{
		Provider:          provider,
		LimitRequests:     h.LimitRequests,
		RemainingRequests: h.RemainingRequests,
		ResetRequests:     h.ResetRequests.String(),
		LimitTokens:       h.LimitTokens,
		RemainingTokens:   h.RemainingTokens,
		ResetTokens:       h.ResetTokens.String(),
		StatusCode:        statusCode,
		Throttled:         statusCode == 429,
		UpdatedAt:         now.UnixMilli(),
	}
	info.ResetRequestsAt = resetAt(now, info.ResetRequests)
	info.ResetTokensAt = resetAt(now, info.ResetTokens)

	t.mu.Lock()
	t.store[provider] = info
	t.mu.Unlock()
}

// RecordStatus notes a failed call, keeping the last known counters.
func (t *RateLimitTracker) RecordStatus(provider string, statusCode int) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.store[provider]
	if !ok {
		info = &RateLimitInfo{Provider: provider}
	} else {
		cp := *info
		info = &cp
	}
	info.StatusCode = statusCode
	info.Throttled = statusCode == 429
	info.UpdatedAt = now.UnixMilli()
	t.store[provider] = info
}

// Snapshot returns a copy of every stored entry.
func (t *RateLimitTracker) Snapshot() map[string]*RateLimitInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]*RateLimitInfo, len(t.store))
	now := t.now()
	for k, v := range t.store {
		cp := *v
		ago := now.Sub(time.UnixMilli(v.UpdatedAt))
		switch {
		case ago < time.Minute:
			cp.UpdatedAgo = strconv.Itoa(int(ago.Seconds())) + "s ago"
		default:
			cp.UpdatedAgo = strconv.Itoa(int(ago.Minutes())) + "m ago"
		}
		out[k] = &cp
	}
	return out
}

func resetAt(now time.Time, reset string) *int64 {
	if reset == "" {
		return nil
	}
	d, err := time.ParseDuration(reset)
	if err != nil {
		return nil
	}
	at := now.Add(d).UnixMilli()
	return &at
}
