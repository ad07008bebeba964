package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"renamebot/internal/api/health"
	telegramapi "renamebot/internal/api/telegram"
	"renamebot/pkg/logger"
)

type acceptAll struct{}

func (acceptAll) HandleWebhookRequest(*http.Request) error { return nil }

func newTestServer(webhook bool) http.Handler {
	checks := health.New(logger.Nop(), "renamebot", "test",
		health.Component{Name: "postgres", Checker: health.CheckerFunc(func(context.Context) error { return nil })},
	)

	cfg := ServerConfig{ServiceName: "renamebot", Version: "test"}
	if webhook {
		cfg.TelegramWebhook = telegramapi.NewWebhookHandler(acceptAll{}, nil, logger.Nop())
	}
	return NewServer(cfg, checks, logger.Nop()).Handler()
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(true)

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, WebhookPath, http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}")))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestServer_NoWebhookInPolling(t *testing.T) {
	srv := newTestServer(false)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Root(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"service":"renamebot","version":"test","status":"running"}`, rec.Body.String())
}
