package domain

import "strings"

// ProcessRequest is the body of POST /process-asr. Field names are part of
// the contract with the orchestrating function and must not change.
type ProcessRequest struct {
	YouTubeURL string `json:"youtube_url"`
	VideoID    string `json:"video_id"`
}

// LocalAudio points at a downloaded audio file inside a per-run scratch
// directory. WorkDir is set whenever the directory was created, including
// when the download itself failed, so the caller can always tear it down.
type LocalAudio struct {
	WorkDir   string
	FilePath  string
	SourceURL string
	Info      *VideoInfo
}

// VideoInfo is the subset of download-tool metadata we keep around, shaped
// for the probe response and for staged-object metadata.
type VideoInfo struct {
	ID         string  `json:"video_id"`
	Title      string  `json:"title"`
	Channel    string  `json:"channel"`
	Ext        string  `json:"ext,omitempty"`
	Thumbnail  string  `json:"thumbnail,omitempty"`
	UploadDate string  `json:"upload_date,omitempty"`
	Duration   float64 `json:"duration_seconds"`
	ViewCount  int64   `json:"view_count,omitempty"`
}

// StagedAudio describes one uploaded object and the signed URL handed to the
// transcription service. On a failed run the object is deleted before the
// error surfaces; on success ownership passes to the transcription job.
type StagedAudio struct {
	SignedURL string
	ObjectKey string
	Bucket    string
}

// TranscriptionJob is the external identifier returned by the transcription
// API on submission.
type TranscriptionJob struct {
	ID string
}

// ProcessResult is the success body of POST /process-asr.
type ProcessResult struct {
	ExternalID string `json:"external_id"`
	AudioURL   string `json:"audio_url"`
	ObjectKey  string `json:"audio_path"`
	Bucket     string `json:"audio_bucket"`
}

// BatchRequest is the body of POST /batch.
type BatchRequest struct {
	Items []ProcessRequest `json:"items"`
}

// BatchItemResult is one slot of a batch response, in input order.
type BatchItemResult struct {
	YouTubeURL string         `json:"youtube_url"`
	VideoID    string         `json:"video_id"`
	Result     *ProcessResult `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// PlaceholderItemID is used in file and object paths when a caller-supplied
// id sanitizes down to nothing.
const PlaceholderItemID = "unknown"

// SanitizeItemID reduces a caller-supplied identifier to characters safe in
// file and object paths. Anything outside [A-Za-z0-9_-] is dropped; an empty
// result maps to PlaceholderItemID, never to an empty path segment.
func SanitizeItemID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return PlaceholderItemID
	}
	return b.String()
}
