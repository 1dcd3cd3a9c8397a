// Package transcription turns a call recording URL into transcript text via
// the ASR service's publish, poll and download endpoints.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

const (
	providerName   = "asr"
	mockTranscript = "MOCK TRANSCRIPT: Customer reports a billing issue and asks for a refund. Agent apologizes, verifies the account and confirms the refund has been issued."
)

type PublishSuccessResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		LanguageId       int    `json:"LanguageId"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		AudioURL             string `json:"AudioURL"`
		LanguageId           int    `json:"LanguageId"`
		Status               string `json:"Status"` // Success, Queued, Processing, Failed
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
		WordsCount           int    `json:"WordsCount"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

type Config struct {
	BaseURL      string
	Mock         bool
	PollInterval time.Duration
	MaxPolls     int
	// RequestRetry bounds the backoff around each JSON call.
	RequestRetry time.Duration
}

// Client talks to the ASR service. With Mock set it returns a canned transcript.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 40
	}
	if cfg.RequestRetry <= 0 {
		cfg.RequestRetry = 12 * time.Second
	}
	if log == nil {
		log = logger.New()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 12 * time.Second},
		log:  log.WithComponent("transcription"),
	}
}

// Transcribe returns the transcript for the recording at audioURL. Failures
// are reported as *types.ProviderError.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (string, error) {
	if c.cfg.Mock {
		return mockTranscript, nil
	}
	if c.cfg.BaseURL == "" {
		return "", &types.ProviderError{Provider: providerName, Message: "TRANSCRIBE_URL not set"}
	}

	log := c.log.WithField("audio_url", audioURL)
	mediaID, existingURL, err := c.publish(ctx, audioURL)
	if err != nil {
		return "", providerErr("publish", err)
	}
	if existingURL != "" {
		return c.downloadOrErr(ctx, existingURL)
	}
	finalURL, err := c.poll(ctx, mediaID)
	if err != nil {
		return "", providerErr("poll", err)
	}
	log.WithField("final_url", finalURL).Info("download final transcript")
	return c.downloadOrErr(ctx, finalURL)
}

func (c *Client) downloadOrErr(ctx context.Context, u string) (string, error) {
	text, err := c.download(ctx, u)
	if err != nil {
		return "", providerErr("download", err)
	}
	return text, nil
}

func providerErr(stage string, err error) error {
	retryable := !errors.Is(err, context.Canceled)
	var failed *failedError
	if errors.As(err, &failed) {
		retryable = false
	}
	return &types.ProviderError{Provider: providerName, Message: stage, Retryable: retryable, Cause: err}
}

// failedError is a terminal status reported by the ASR service.
type failedError struct{ reason string }

func (e *failedError) Error() string { return "transcription failed: " + e.reason }

func (c *Client) publish(ctx context.Context, callURL string) (string, string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/transcribe"
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("callRecordingLink", callURL)
	_ = w.WriteField("callType", "PNS")
	_ = w.Close()
	body := b.Bytes()

	var resp PublishSuccessResponse
	newReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}
	if err := c.doJSON(ctx, newReq, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", &failedError{reason: fmt.Sprintf("publish code=%d reason=%s", resp.Code, resp.Reason)}
	}
	if resp.Data.TranscriptionURL != "" && strings.ToLower(resp.Data.Status) == "success" {
		return "", resp.Data.TranscriptionURL, nil
	}
	return resp.Data.MediaId, "", nil
}

func (c *Client) poll(ctx context.Context, mediaID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/getstatus")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for i := 0; i < c.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		var s StatusResponse
		newReq := func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		}
		if err := c.doJSON(ctx, newReq, &s); err != nil {
			c.log.WithField("media_id", mediaID).WithField("error", err.Error()).Debug("status check failed")
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.TranscriptionTextURL, nil
		case "Failed":
			return "", &failedError{reason: s.Reason}
		}
	}
	return "", fmt.Errorf("transcription timeout after %d polls", c.cfg.MaxPolls)
}

func (c *Client) download(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download failed: status=%d body=%s", resp.StatusCode, string(b))
	}
	return string(b), nil
}

// doJSON retries transport errors, 5xx and undecodable bodies with backoff.
func (c *Client) doJSON(ctx context.Context, newReq func() (*http.Request, error), target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.RequestRetry
	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: status=%d body=%s", resp.StatusCode, string(body))
		}
		if len(body) == 0 {
			return fmt.Errorf("empty body")
		}
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("json decode error: %v body=%s", err, string(body))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
