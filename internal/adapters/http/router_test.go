package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VideoShare/internal/adapters/rtc"
	"github.com/dkeye/VideoShare/internal/adapters/signal"
	"github.com/dkeye/VideoShare/internal/app"
	"github.com/dkeye/VideoShare/internal/app/orch"
	"github.com/dkeye/VideoShare/internal/config"
	"github.com/dkeye/VideoShare/internal/loop/looptest"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	exec     *looptest.Executor
	acquirer *rtc.DeviceAcquirer
	hub      *rtc.Hub
	engine   *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Mode: "test", StaticPath: t.TempDir(), Secret: "secret"}

	s := &server{
		exec: looptest.New(),
		acquirer: rtc.NewDeviceAcquirer(webrtc.MimeTypeVP8, []config.DeviceConfig{
			{ID: "cam0", Label: "Camera", Permitted: true},
			{ID: "locked", Label: "Locked"},
		}),
		hub: rtc.NewHub(time.Second),
	}
	o := orch.NewOrchestrator(app.NewRegistry(), s.exec, s.hub, rtc.NewShareClassifier(96, time.Second), s.acquirer, orch.Options{
		Self:         "hub",
		RemovalDelay: 3 * time.Second,
	})
	o.Start()
	s.exec.Flush()
	ctl := signal.NewSignalWSController(o, s.hub, signal.Options{})
	s.engine = SetupRouter(context.Background(), cfg, o, ctl, s.acquirer)
	return s
}

func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestRouter_ClientTokenCookie(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/presence", "")
	require.Equal(t, http.StatusOK, w.Code)

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			found = true
			assert.NotEmpty(t, c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)
	assert.Empty(t, decode(t, w)["participants"])
}

func TestRouter_ShareLifecycle(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/share", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disabled", decode(t, w)["state"])

	w = s.do(http.MethodPut, "/api/share", `{"enabled":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	s.exec.Flush()
	s.exec.Await(t, 1)

	body := decode(t, s.do(http.MethodGet, "/api/share", ""))
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, true, body["enabled"])
	assert.NotNil(t, body["stream"])

	devices := decode(t, s.do(http.MethodGet, "/api/devices", ""))["devices"].([]any)
	require.Len(t, devices, 2)
	assert.Equal(t, true, devices[0].(map[string]any)["in_use"])

	w = s.do(http.MethodDelete, "/api/devices/cam0", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	s.exec.Flush()

	body = decode(t, s.do(http.MethodGet, "/api/share", ""))
	assert.Equal(t, "disabled", body["state"])
	assert.Equal(t, false, body["enabled"])

	w = s.do(http.MethodDelete, "/api/devices/cam0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ShareFailureIsReported(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPut, "/api/share", `{"enabled":true,"device":"locked"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	s.exec.Flush()
	s.exec.Await(t, 1)

	body := decode(t, s.do(http.MethodGet, "/api/share", ""))
	assert.Equal(t, "disabled", body["state"])
	assert.Equal(t, false, body["enabled"])
	assert.Contains(t, body["error"], "permission denied")
}

func TestRouter_BadShareRequest(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/share", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/share", `nope`).Code)
}

func TestRouter_Rename(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPut, "/api/me/name", `{"name":"alice"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode(t, w)["username"])

	w = s.do(http.MethodPut, "/api/me/name", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
