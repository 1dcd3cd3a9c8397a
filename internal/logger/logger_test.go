package logger

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewWithOutput_JSON(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	log := NewWithOutput(&buf)
	log.Info("dropped")
	log.WithComponent("scoring").Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"component":"scoring"`)
	assert.Contains(t, out, `"service":"cxqa-go"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("debug"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
}

func TestWithRequest_UsesHeaderID(t *testing.T) {
	req := httptest.NewRequest("POST", "/score", nil)
	req.Header.Set("X-Request-ID", "req-123")

	entry := Discard().WithRequest(req)
	assert.Equal(t, "req-123", entry.Data["req_id"])
	assert.Equal(t, "/score", entry.Data["path"])
}

func TestRequestID_Generated(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	assert.Len(t, RequestID(req), 36)
}

func TestWithError(t *testing.T) {
	log := Discard()
	assert.Equal(t, "boom", log.WithError(errors.New("boom")).Data["error"])
	assert.NotContains(t, log.WithError(nil).Data, "error")
}
