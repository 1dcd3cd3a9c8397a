package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const MinTranscriptLen = 10

// ConversationRecord is one ingest event: a transcript (or a recording to
// transcribe) plus the agent and conversation metadata.
type ConversationRecord struct {
	ConversationID string `json:"conversation_id" validate:"required,max=64"`
	AgentID        string `json:"agent_id" validate:"required,max=64"`
	AgentName      string `json:"agent_name,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	Channel        string `json:"channel,omitempty" validate:"omitempty,max=16"`
	Language       string `json:"language,omitempty" validate:"omitempty,max=16"`
	Transcript     string `json:"transcript,omitempty"`
	AudioURL       string `json:"audio_url,omitempty" validate:"omitempty,url"`
}

var validate = validator.New()

// Validate checks the record and fills channel/language defaults.
func (r *ConversationRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &ValidationError{Message: err.Error()}
	}
	if strings.TrimSpace(r.Transcript) == "" && r.AudioURL == "" {
		return &ValidationError{Field: "transcript", Message: "transcript or audio_url is required"}
	}
	if r.Transcript != "" {
		if err := CheckTranscript(r.Transcript); err != nil {
			return err
		}
	}
	if _, err := r.StartedTime(); err != nil {
		return err
	}
	if r.Channel == "" {
		r.Channel = "chat"
	}
	if r.Language == "" {
		r.Language = "en"
	}
	return nil
}

// CheckTranscript rejects transcripts too short to score.
func CheckTranscript(text string) error {
	if len([]rune(strings.TrimSpace(text))) < MinTranscriptLen {
		return &ValidationError{
			Field:   "transcript",
			Message: fmt.Sprintf("must be at least %d characters", MinTranscriptLen),
		}
	}
	return nil
}

var startedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// StartedTime parses StartedAt. A nil time means the field was empty.
func (r *ConversationRecord) StartedTime() (*time.Time, error) {
	if r.StartedAt == "" {
		return nil, nil
	}
	for _, layout := range startedAtLayouts {
		if t, err := time.Parse(layout, r.StartedAt); err == nil {
			return &t, nil
		}
	}
	return nil, &ValidationError{Field: "started_at", Message: fmt.Sprintf("not an ISO-8601 timestamp: %q", r.StartedAt)}
}

// Validate checks a human label: id present, every score in 1-5.
func (l *HumanLabel) Validate() error {
	if err := validate.Struct(l); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
