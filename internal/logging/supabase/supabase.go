// Package supabase ships batches into the log_entries table through the
// Supabase REST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

const (
	tablePath      = "/rest/v1/log_entries"
	maxErrorBody   = 512
	requestTimeout = 10 * time.Second
)

type Sender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type row struct {
	AppID string `json:"app_id"`
	logging.Entry
}

func NewSender(baseURL, apiKey string) *Sender {
	return &Sender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// NewSink is a logging.SinkFactory.
func NewSink(cfg logging.Config) (logging.Sink, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse supabase url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("supabase url %q must be http or https", cfg.Endpoint)
	}
	return NewSender(cfg.Endpoint, cfg.Credential), nil
}

func (s *Sender) Send(ctx context.Context, targetID string, batch []logging.Entry) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]row, len(batch))
	for i, e := range batch {
		rows[i] = row{AppID: targetID, Entry: e}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "marshal log entries")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+tablePath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Errorf("supabase returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
