package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

type Sender struct {
	baseURL    string
	token      string
	node       string
	httpClient *http.Client
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type Payload struct {
	Streams []Stream `json:"streams"`
}

func NewLokiSender(baseURL, token, node string) *Sender {
	return &Sender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		node:    node,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// NewSink is a logging.SinkFactory. The credential is sent as a bearer
// token and NodeName becomes the node label.
func NewSink(cfg logging.Config) (logging.Sink, error) {
	return NewLokiSender(cfg.Endpoint, cfg.Credential, cfg.NodeName), nil
}

func (ls *Sender) Send(ctx context.Context, targetID string, entries []logging.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	payload := ls.createPayload(targetID, entries)
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	return ls.sendRequest(ctx, body)
}

func (ls *Sender) createPayload(targetID string, entries []logging.Entry) Payload {
	streams := make(map[string]Stream)

	for _, entry := range entries {
		streamKey := ls.getStreamKey(entry)
		if _, exists := streams[streamKey]; !exists {
			streams[streamKey] = Stream{
				Stream: ls.createLabels(targetID, entry),
				Values: [][2]string{},
			}
		}

		stream := streams[streamKey]
		timestamp := fmt.Sprintf("%d", entry.Timestamp.UnixNano())
		stream.Values = append(stream.Values, [2]string{timestamp, formatLine(entry)})
		streams[streamKey] = stream
	}

	payload := Payload{
		Streams: make([]Stream, 0, len(streams)),
	}

	for _, stream := range streams {
		payload.Streams = append(payload.Streams, stream)
	}

	return payload
}

func (ls *Sender) getStreamKey(entry logging.Entry) string {
	return fmt.Sprintf("%s:%s:%s", entry.Level, entry.Context["pod"], entry.Context["container"])
}

func (ls *Sender) createLabels(targetID string, entry logging.Entry) map[string]string {
	labels := map[string]string{
		"app":   targetID,
		"level": entry.Level.String(),
	}
	if ls.node != "" {
		labels["node"] = ls.node
	}
	for _, k := range []string{"namespace", "pod", "container"} {
		if v := entry.Context[k]; v != "" {
			labels[k] = v
		}
	}

	return labels
}

// formatLine keeps the message first so Loki's line filters still match,
// and appends the location and stack trace when present.
func formatLine(entry logging.Entry) string {
	var b strings.Builder
	b.WriteString(entry.Message)
	if entry.FileName != "" {
		fmt.Fprintf(&b, " (%s:%d)", entry.FileName, entry.LineNumber)
	}
	if entry.TraceID != "" {
		fmt.Fprintf(&b, " trace_id=%s", entry.TraceID)
	}
	if entry.StackTrace != "" {
		b.WriteString("\n")
		b.WriteString(entry.StackTrace)
	}
	return b.String()
}

func (ls *Sender) sendRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ls.baseURL+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	if ls.token != "" {
		req.Header.Set("Authorization", "Bearer "+ls.token)
	}

	resp, err := ls.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("loki returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	return nil
}
