package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/acme/announcement-call/internal/api/handlers"
	"github.com/acme/announcement-call/internal/app"
	"github.com/acme/announcement-call/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Name: "announcement-call", Env: "test"},
		Communication: config.CommunicationConfig{
			Provider:        config.ProviderMock,
			FromPhoneNumber: "+15550000000",
			CallbackURL:     "https://example.test/api/CallEvents",
		},
		Audio: config.AudioConfig{AssetPath: t.TempDir() + "/missing.mp3"},
	}
	container, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })
	return NewServer(container, handlers.NewHandlerSet(container))
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/GetAudio", "", http.StatusNotFound},
		{http.MethodPost, "/api/CallWebhook", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/CallEvents", `[]`, http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.StatusCode)
		}
	}
}

func TestStartReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()

	srv := newTestServer(t)
	srv.deps.Config.HTTP.Port = ln.Addr().(*net.TCPAddr).Port

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected listen error on an occupied port")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Start did not return after the listener failed")
	}
}
