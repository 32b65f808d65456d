package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/volterm/axpert2mqtt/internal/util"
	"github.com/volterm/axpert2mqtt/pkg/axpert"

	"github.com/stretchr/testify/assert"
)

// scriptedTransport serves one canned response per exchange.
type scriptedTransport struct {
	responses [][]byte
	pending   []byte
}

func (t *scriptedTransport) Write(p []byte) (int, error) {
	return len(p), nil
}

func (t *scriptedTransport) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		if len(t.responses) == 0 {
			return 0, nil
		}
		t.pending = t.responses[0]
		t.responses = t.responses[1:]
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *scriptedTransport) Close() error { return nil }

func newTestServer(responses [][]byte) *Server {
	cfg := util.LoadTestConfig()
	client := axpert.NewClient(&scriptedTransport{responses: responses},
		axpert.WithChunkDelay(time.Millisecond),
		axpert.WithTimeout(time.Second))
	return &Server{
		port:    cfg.Port,
		httpLog: cfg.HttpLog,
		client:  client,
	}
}

func TestHealthCheckWithoutMonitor(t *testing.T) {
	assert := assert.New(t)

	s := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.Equal("health_check: FAIL", rec.Body.String())
}

func TestMnemonicsHandler(t *testing.T) {
	assert := assert.New(t)

	s := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/mnemonics", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), "QPIGS")
	assert.Contains(rec.Body.String(), "QMOD")
}

func TestQueryHandler(t *testing.T) {
	assert := assert.New(t)

	// QMOD response (B
	qmod := []byte{0x28, 0x42, 0xE7, 0xC9, 0x0D}
	s := newTestServer([][]byte{qmod})
	req := httptest.NewRequest(http.MethodPost, "/query/QMOD", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), "device_mode")
	assert.Contains(rec.Body.String(), "Battery mode")
}

func TestQueryHandlerUnknownMnemonic(t *testing.T) {
	assert := assert.New(t)

	s := newTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/query/ZZZ", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestQueryHandlerFrameError(t *testing.T) {
	assert := assert.New(t)

	// CRC bytes zeroed out
	corrupt := []byte{0x28, 0x42, 0x00, 0x00, 0x0D}
	s := newTestServer([][]byte{corrupt})
	req := httptest.NewRequest(http.MethodPost, "/query/QMOD", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusBadGateway, rec.Code)
}

func TestCommandHandlerACK(t *testing.T) {
	assert := assert.New(t)

	ack := []byte{0x28, 0x41, 0x43, 0x4B, 0x39, 0x20, 0x0D}
	s := newTestServer([][]byte{ack})
	req := httptest.NewRequest(http.MethodPost, "/command/POP02", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), "true")
}

func TestCommandHandlerRejectsQuery(t *testing.T) {
	assert := assert.New(t)

	qmod := []byte{0x28, 0x42, 0xE7, 0xC9, 0x0D}
	s := newTestServer([][]byte{qmod})
	req := httptest.NewRequest(http.MethodPost, "/command/QMOD", nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(http.StatusBadRequest, rec.Code)
}
