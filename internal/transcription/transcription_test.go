package transcription

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

func newASRServer(t *testing.T, publishBody func(base string) string, statuses []string) *httptest.Server {
	t.Helper()
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "https://calls.example.com/1.mp3", r.FormValue("callRecordingLink"))
			fmt.Fprint(w, publishBody(srv.URL))
		case "/getstatus":
			assert.Equal(t, "m-1", r.URL.Query().Get("mediaId"))
			i := int(atomic.AddInt32(&polls, 1)) - 1
			if i >= len(statuses) {
				i = len(statuses) - 1
			}
			fmt.Fprintf(w, `{"Code":200,"Status":"ok","Reason":"bad audio","Data":{"Status":%q,"TranscriptionTextURL":%q}}`, statuses[i], srv.URL+"/text")
		case "/text":
			fmt.Fprint(w, "agent: hello, how can I help you today")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(base string) *Client {
	return NewClient(Config{
		BaseURL:      base,
		PollInterval: time.Millisecond,
		MaxPolls:     5,
		RequestRetry: 100 * time.Millisecond,
	}, logger.Discard())
}

func TestTranscribe_PollsUntilSuccess(t *testing.T) {
	srv := newASRServer(t, func(string) string {
		return `{"Code":200,"Status":"ok","Data":{"MediaId":"m-1","Status":"Queued"}}`
	}, []string{"Queued", "Processing", "Success"})

	text, err := newTestClient(srv.URL).Transcribe(context.Background(), "https://calls.example.com/1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "agent: hello, how can I help you today", text)
}

func TestTranscribe_ExistingTranscript(t *testing.T) {
	srv := newASRServer(t, func(base string) string {
		return fmt.Sprintf(`{"Code":200,"Status":"ok","Data":{"Status":"success","TranscriptionURL":%q}}`, base+"/text")
	}, []string{"Failed"})

	text, err := newTestClient(srv.URL).Transcribe(context.Background(), "https://calls.example.com/1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "agent: hello, how can I help you today", text)
}

func TestTranscribe_Failed(t *testing.T) {
	srv := newASRServer(t, func(string) string {
		return `{"Code":200,"Status":"ok","Data":{"MediaId":"m-1","Status":"Queued"}}`
	}, []string{"Failed"})

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), "https://calls.example.com/1.mp3")
	require.Error(t, err)
	assert.Equal(t, types.KindProvider, types.KindOf(err))
	assert.False(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "bad audio")
}

func TestTranscribe_Mock(t *testing.T) {
	c := NewClient(Config{Mock: true}, logger.Discard())
	text, err := c.Transcribe(context.Background(), "https://calls.example.com/1.mp3")
	require.NoError(t, err)
	assert.Contains(t, text, "MOCK TRANSCRIPT")
}

func TestTranscribe_NoBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, logger.Discard()).Transcribe(context.Background(), "https://calls.example.com/1.mp3")
	require.Error(t, err)
	assert.Equal(t, types.KindProvider, types.KindOf(err))
}
