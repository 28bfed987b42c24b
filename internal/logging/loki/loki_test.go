package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

func TestLokiSender_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "Bearer tenant-token", r.Header.Get("Authorization"))

		var payload Payload
		err := json.NewDecoder(r.Body).Decode(&payload)
		assert.NoError(t, err)

		assert.Equal(t, 1, len(payload.Streams))
		assert.Equal(t, "checkout", payload.Streams[0].Stream["app"])
		assert.Equal(t, "ERROR", payload.Streams[0].Stream["level"])
		assert.Equal(t, "test-pod", payload.Streams[0].Stream["pod"])
		assert.Equal(t, "node-a", payload.Streams[0].Stream["node"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewLokiSender(server.URL, "tenant-token", "node-a")

	entries := []logging.Entry{
		{
			Timestamp: time.Now(),
			Level:     logging.LevelError,
			Message:   "test message 1",
			FileName:  "test.go",
			Context:   map[string]string{"pod": "test-pod", "container": "test-container"},
		},
	}

	err := sender.Send(context.Background(), "checkout", entries)
	assert.NoError(t, err)
}

func TestLokiSender_Send_NoRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("ingester unavailable"))
	}))
	defer server.Close()

	sender := NewLokiSender(server.URL, "", "")

	entries := []logging.Entry{
		{
			Timestamp: time.Now(),
			Message:   "test message",
			Context:   map[string]string{"pod": "test-pod"},
		},
	}

	err := sender.Send(context.Background(), "checkout", entries)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "ingester unavailable")

	assert.Equal(t, 1, attempts)
}

func TestLokiSender_CreatePayload(t *testing.T) {
	sender := NewLokiSender("http://test:3100", "", "")

	now := time.Now()
	entries := []logging.Entry{
		{
			Timestamp: now,
			Level:     logging.LevelWarn,
			Message:   "message 1",
			Context:   map[string]string{"pod": "pod-1", "container": "container-1"},
		},
		{
			Timestamp: now.Add(time.Second),
			Level:     logging.LevelWarn,
			Message:   "message 2",
			Context:   map[string]string{"pod": "pod-1", "container": "container-1"},
		},
		{
			Timestamp: now.Add(2 * time.Second),
			Level:     logging.LevelWarn,
			Message:   "message 3",
			Context:   map[string]string{"pod": "pod-2", "container": "container-2"},
		},
	}

	payload := sender.createPayload("app-1", entries)

	assert.Equal(t, 2, len(payload.Streams))

	for _, stream := range payload.Streams {
		pod := stream.Stream["pod"]
		if pod == "pod-1" {
			assert.Equal(t, 2, len(stream.Values))
		} else if pod == "pod-2" {
			assert.Equal(t, 1, len(stream.Values))
		}
	}
}

func TestFormatLine(t *testing.T) {
	line := formatLine(logging.Entry{
		Message:    "boom",
		FileName:   "main.go",
		LineNumber: 12,
		TraceID:    "t-1",
		StackTrace: "*errors.fundamental: boom",
	})

	assert.True(t, strings.HasPrefix(line, "boom (main.go:12) trace_id=t-1\n"))
	assert.Contains(t, line, "*errors.fundamental: boom")
}

func TestNewSink_NodeLabelFromConfig(t *testing.T) {
	sink, err := NewSink(logging.Config{Endpoint: "http://loki:3100/", Credential: "k", TargetID: "a", NodeName: "worker-3"})
	assert.NoError(t, err)

	sender := sink.(*Sender)
	assert.Equal(t, "http://loki:3100", sender.baseURL)
	labels := sender.createLabels("a", logging.Entry{Level: logging.LevelError})
	assert.Equal(t, "worker-3", labels["node"])

	labels = NewLokiSender("http://loki:3100", "", "").createLabels("a", logging.Entry{})
	assert.NotContains(t, labels, "node")
}
