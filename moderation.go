package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ModerationService reviews a proposed display name before a session is
// created. The real implementation is an external AI review endpoint;
// when none is configured every name is approved.
type ModerationService interface {
	Review(ctx context.Context, name string) (moderationResult, error)
}

type moderationResult struct {
	Approved  bool   `json:"approved"`
	Alternate string `json:"alternate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type approveAllModeration struct{}

func (approveAllModeration) Review(_ context.Context, _ string) (moderationResult, error) {
	return moderationResult{Approved: true}, nil
}

type httpModeration struct {
	url    string
	client *http.Client
}

func newModeration(cfg *Config) ModerationService {
	if cfg.moderationURL == "" {
		return approveAllModeration{}
	}
	return &httpModeration{
		url:    cfg.moderationURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (m *httpModeration) Review(ctx context.Context, name string) (moderationResult, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return moderationResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return moderationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return moderationResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return moderationResult{}, fmt.Errorf("moderation service returned %d", resp.StatusCode)
	}

	var result moderationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return moderationResult{}, err
	}
	return result, nil
}
