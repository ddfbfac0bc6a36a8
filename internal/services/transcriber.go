package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Afaqak/asr-worker/internal/config"
	"github.com/Afaqak/asr-worker/internal/domain"
)

const (
	transcriptPath = "/v2/transcript"
	submitTimeout  = 2 * time.Minute
)

// SubmitError reports a failed transcription submission, keeping the
// upstream status and response body for diagnostics.
type SubmitError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *SubmitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("transcription submit failed: %s", e.Reason)
	}
	return fmt.Sprintf("transcription submit failed: status %d: %s", e.StatusCode, e.Body)
}

// Transcriber submits staged audio URLs to the transcription API. It only
// creates jobs; results come back over the configured webhook.
type Transcriber struct {
	baseURL       string
	apiKey        string
	webhookURL    string
	webhookSecret string
	webhookHeader string
	httpClient    *http.Client
}

func NewTranscriber(cfg config.Config) *Transcriber {
	return &Transcriber{
		baseURL:       strings.TrimSuffix(cfg.TranscribeAPIURL, "/"),
		apiKey:        cfg.TranscribeAPIKey,
		webhookURL:    cfg.WebhookURL,
		webhookSecret: cfg.WebhookSecret,
		webhookHeader: cfg.WebhookSecretHeader,
		httpClient:    &http.Client{Timeout: submitTimeout},
	}
}

type submitPayload struct {
	AudioURL               string `json:"audio_url"`
	LanguageDetection      bool   `json:"language_detection"`
	WebhookURL             string `json:"webhook_url,omitempty"`
	WebhookAuthHeaderName  string `json:"webhook_auth_header_name,omitempty"`
	WebhookAuthHeaderValue string `json:"webhook_auth_header_value,omitempty"`
}

// Submit creates one transcription job for the signed audio URL and returns
// its id. Retrying is the caller's policy, not this client's.
func (t *Transcriber) Submit(ctx context.Context, audioURL string) (domain.TranscriptionJob, error) {
	payload := submitPayload{
		AudioURL:          audioURL,
		LanguageDetection: true,
	}
	if t.webhookURL != "" {
		payload.WebhookURL = t.webhookURL
		if t.webhookSecret != "" {
			payload.WebhookAuthHeaderName = t.webhookHeader
			payload.WebhookAuthHeaderValue = t.webhookSecret
		}
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return domain.TranscriptionJob{}, &SubmitError{Reason: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+transcriptPath, body)
	if err != nil {
		return domain.TranscriptionJob{}, &SubmitError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return domain.TranscriptionJob{}, &SubmitError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.TranscriptionJob{}, &SubmitError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.TranscriptionJob{}, &SubmitError{Reason: fmt.Sprintf("decode response: %v", err)}
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return domain.TranscriptionJob{}, &SubmitError{Reason: "response missing job identifier"}
	}

	return domain.TranscriptionJob{ID: decoded.ID}, nil
}
