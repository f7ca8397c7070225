package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/broadcast"
	"github.com/ratewatch/ratewatch/internal/domain"
)

func TestEventStream_DeliversPublishedEvents(t *testing.T) {
	hub := broadcast.NewHub(testLogger())
	handler := NewEventsHandler(hub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(rec, req)
	}()

	// Wait for the subscription to be registered before publishing.
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(map[string]any{"nome": "Bitcoin", "alta": 70000, "baixa": 60000})
	require.NoError(t, err)
	hub.Publish(broadcast.Event{Name: domain.EventCurrencyCreated, Payload: payload})

	// Give the stream loop a moment to drain the subscription, then
	// disconnect. The body is only inspected after the handler returns.
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not close on client disconnect")
	}

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, ": connected")
	assert.Contains(t, body, "event: novamoeda")
	assert.Contains(t, body, `data: {"alta":70000,"baixa":60000,"nome":"Bitcoin"}`)
}

func TestEventStream_ClosesWhenHubShutsDown(t *testing.T) {
	hub := broadcast.NewHub(testLogger())
	handler := NewEventsHandler(hub, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(rec, req)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not close when the hub shut down")
	}
}

func TestEventStream_SubscriptionRemovedAfterDisconnect(t *testing.T) {
	hub := broadcast.NewHub(testLogger())
	handler := NewEventsHandler(hub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(rec, req)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, hub.Subscribers())
}
