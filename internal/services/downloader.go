package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Afaqak/asr-worker/internal/config"
	"github.com/Afaqak/asr-worker/internal/domain"
)

// maxDiagnosticBytes caps how much tool stderr a DownloadError carries.
const maxDiagnosticBytes = 2048

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".opus": {},
	".ogg":  {},
	".webm": {},
	".wav":  {},
	".flac": {},
	".aac":  {},
}

// DownloadError reports a failed audio fetch. Output holds the tail of the
// tool's stderr, which is where yt-dlp puts the reason.
type DownloadError struct {
	Output string
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("download failed: %v", e.Err)
	}
	return fmt.Sprintf("download failed: %s", e.Output)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Downloader fetches the audio track of a video into a per-run scratch
// directory by shelling out to yt-dlp.
type Downloader struct {
	binary  string
	proxy   string
	headers []string
	runner  commandRunner
}

func NewDownloader(cfg config.Config) *Downloader {
	return &Downloader{
		binary:  cfg.YtdlpPath,
		proxy:   cfg.ProxyURL,
		headers: cfg.YtdlpHeaders,
		runner:  execRunner{},
	}
}

// Fetch downloads the audio for sourceURL and returns a handle to the
// produced file. The scratch directory is part of the handle even when the
// download fails; teardown belongs to the caller on every exit path.
func (d *Downloader) Fetch(ctx context.Context, sourceURL, itemID string) (domain.LocalAudio, error) {
	workDir, err := os.MkdirTemp("", "asr-*")
	if err != nil {
		return domain.LocalAudio{}, &DownloadError{Err: fmt.Errorf("create scratch dir: %w", err)}
	}
	audio := domain.LocalAudio{WorkDir: workDir, SourceURL: sourceURL}

	base := domain.SanitizeItemID(itemID)
	outputTemplate := filepath.Join(workDir, base+".%(ext)s")

	res, runErr := d.runner.Run(ctx, d.binary, d.downloadArgs(sourceURL, outputTemplate)...)
	if runErr != nil {
		return audio, &DownloadError{Output: trimDiagnostic(res.Stderr), Err: runErr}
	}

	// A clean exit does not guarantee output; the tool has exited zero
	// without writing a file.
	filePath, err := findAudioFile(workDir)
	if err != nil {
		return audio, err
	}
	audio.FilePath = filePath
	audio.Info = readInfoJSON(workDir, base)
	return audio, nil
}

// Probe fetches video metadata without downloading anything.
func (d *Downloader) Probe(ctx context.Context, sourceURL string) (domain.VideoInfo, error) {
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	args = d.appendNetworkArgs(args)
	args = append(args, sourceURL)

	res, err := d.runner.Run(ctx, d.binary, args...)
	if err != nil {
		return domain.VideoInfo{}, &DownloadError{Output: trimDiagnostic(res.Stderr), Err: err}
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return domain.VideoInfo{}, &DownloadError{Err: fmt.Errorf("parse video info: %w", err)}
	}
	return info.toDomain(), nil
}

func (d *Downloader) downloadArgs(sourceURL, outputTemplate string) []string {
	args := []string{
		"--no-playlist",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--retries", "5",
		"--fragment-retries", "5",
		"--extractor-retries", "3",
		"--socket-timeout", "60",
		"--no-check-certificates",
		"--no-progress",
		"--no-warnings",
		"--write-info-json",
		"-o", outputTemplate,
	}
	args = d.appendNetworkArgs(args)
	return append(args, sourceURL)
}

func (d *Downloader) appendNetworkArgs(args []string) []string {
	if d.proxy != "" {
		args = append(args, "--proxy", d.proxy)
	}
	for _, h := range d.headers {
		args = append(args, "--add-header", h)
	}
	return args
}

// findAudioFile picks the produced audio file out of the scratch directory.
func findAudioFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &DownloadError{Err: fmt.Errorf("read scratch dir: %w", err)}
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", &DownloadError{Output: "download tool produced no audio file"}
}

// ytdlpInfo mirrors the tool's info JSON field names.
type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Channel    string  `json:"channel"`
	Ext        string  `json:"ext"`
	Thumbnail  string  `json:"thumbnail"`
	UploadDate string  `json:"upload_date"`
	Duration   float64 `json:"duration"`
	ViewCount  int64   `json:"view_count"`
}

func (i ytdlpInfo) toDomain() domain.VideoInfo {
	return domain.VideoInfo{
		ID:         i.ID,
		Title:      i.Title,
		Channel:    i.Channel,
		Ext:        i.Ext,
		Thumbnail:  i.Thumbnail,
		UploadDate: i.UploadDate,
		Duration:   i.Duration,
		ViewCount:  i.ViewCount,
	}
}

// readInfoJSON loads the --write-info-json sidecar when present. Metadata
// is best effort; a missing or broken sidecar leaves Info nil.
func readInfoJSON(dir, base string) *domain.VideoInfo {
	raw, err := os.ReadFile(filepath.Join(dir, base+".info.json"))
	if err != nil {
		return nil
	}
	var info ytdlpInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil
	}
	v := info.toDomain()
	return &v
}

// trimDiagnostic keeps the tail of the tool's stderr, where the failure
// reason lands.
func trimDiagnostic(stderr string) string {
	s := strings.TrimSpace(stderr)
	if len(s) > maxDiagnosticBytes {
		s = "..." + s[len(s)-maxDiagnosticBytes:]
	}
	return s
}
