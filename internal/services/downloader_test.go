package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records invocations and lets each test script the outcome.
type fakeRunner struct {
	calls   [][]string
	handler func(name string, args []string) (commandResult, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.handler(name, args)
}

func (f *fakeRunner) lastArgs() []string {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1][1:]
}

// outputTemplate digs the -o value out of a recorded invocation.
func outputTemplate(args []string) string {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func hasArgPair(args []string, flag, value string) bool {
	for i, a := range args {
		if a == flag && i+1 < len(args) && args[i+1] == value {
			return true
		}
	}
	return false
}

// writingHandler simulates a successful download: it writes the audio file
// and info sidecar where the output template points.
func writingHandler(t *testing.T, infoJSON string) func(string, []string) (commandResult, error) {
	t.Helper()
	return func(_ string, args []string) (commandResult, error) {
		tmpl := outputTemplate(args)
		if tmpl == "" {
			t.Fatal("invocation missing -o template")
		}
		audioPath := strings.Replace(tmpl, ".%(ext)s", ".mp3", 1)
		if err := os.WriteFile(audioPath, []byte("mp3-bytes"), 0o644); err != nil {
			t.Fatalf("write fake audio: %v", err)
		}
		if infoJSON != "" {
			infoPath := strings.Replace(tmpl, ".%(ext)s", ".info.json", 1)
			if err := os.WriteFile(infoPath, []byte(infoJSON), 0o644); err != nil {
				t.Fatalf("write fake info json: %v", err)
			}
		}
		return commandResult{}, nil
	}
}

func TestFetchProducesAudioFile(t *testing.T) {
	runner := &fakeRunner{handler: writingHandler(t, `{"id":"dQw4w9WgXcQ","title":"A Title","channel":"A Channel","duration":212.5}`)}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	audio, err := d.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ")
	if audio.WorkDir != "" {
		defer os.RemoveAll(audio.WorkDir)
	}
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if filepath.Base(audio.FilePath) != "dQw4w9WgXcQ.mp3" {
		t.Errorf("file = %q, want dQw4w9WgXcQ.mp3", filepath.Base(audio.FilePath))
	}
	if audio.SourceURL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("source url = %q", audio.SourceURL)
	}
	if audio.Info == nil {
		t.Fatal("info sidecar was not parsed")
	}
	if audio.Info.Title != "A Title" || audio.Info.Duration != 212.5 {
		t.Errorf("info = %+v", audio.Info)
	}

	args := runner.lastArgs()
	for _, want := range []string{"--no-playlist", "-x", "--write-info-json", "--no-progress"} {
		if !hasArg(args, want) {
			t.Errorf("args missing %s: %v", want, args)
		}
	}
	if !hasArgPair(args, "-f", "bestaudio/best") {
		t.Errorf("args missing format selection: %v", args)
	}
	if !hasArgPair(args, "--audio-format", "mp3") {
		t.Errorf("args missing audio format: %v", args)
	}
	if args[len(args)-1] != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("source url is not the final arg: %v", args)
	}
}

func TestFetchSanitizesOutputBaseName(t *testing.T) {
	runner := &fakeRunner{handler: writingHandler(t, "")}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	audio, err := d.Fetch(context.Background(), "https://example.com/v", "../weird id!")
	if audio.WorkDir != "" {
		defer os.RemoveAll(audio.WorkDir)
	}
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := filepath.Base(audio.FilePath); got != "weirdid.mp3" {
		t.Errorf("file = %q, want weirdid.mp3", got)
	}
}

func TestFetchPassesProxyAndHeaders(t *testing.T) {
	runner := &fakeRunner{handler: writingHandler(t, "")}
	d := &Downloader{
		binary:  "yt-dlp",
		proxy:   "socks5://127.0.0.1:9050",
		headers: []string{"User-Agent: probe", "Cookie: a=b"},
		runner:  runner,
	}

	audio, err := d.Fetch(context.Background(), "https://example.com/v", "abc")
	if audio.WorkDir != "" {
		defer os.RemoveAll(audio.WorkDir)
	}
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	args := runner.lastArgs()
	if !hasArgPair(args, "--proxy", "socks5://127.0.0.1:9050") {
		t.Errorf("args missing proxy: %v", args)
	}
	if !hasArgPair(args, "--add-header", "User-Agent: probe") || !hasArgPair(args, "--add-header", "Cookie: a=b") {
		t.Errorf("args missing headers: %v", args)
	}
}

func TestFetchSurfacesToolFailure(t *testing.T) {
	runner := &fakeRunner{handler: func(string, []string) (commandResult, error) {
		return commandResult{Stderr: "ERROR: Video unavailable", ExitCode: 1}, errors.New("exit status 1")
	}}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	audio, err := d.Fetch(context.Background(), "https://example.com/v", "abc")
	if audio.WorkDir != "" {
		defer os.RemoveAll(audio.WorkDir)
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error %v is not a DownloadError", err)
	}
	if !strings.Contains(dlErr.Output, "Video unavailable") {
		t.Errorf("diagnostic %q does not carry the tool output", dlErr.Output)
	}
	if audio.WorkDir == "" {
		t.Error("scratch dir handle missing after failure; caller cannot tear down")
	}
	if _, statErr := os.Stat(audio.WorkDir); statErr != nil {
		t.Errorf("scratch dir not usable after failure: %v", statErr)
	}
}

func TestFetchFailsWhenNoFileProduced(t *testing.T) {
	runner := &fakeRunner{handler: func(string, []string) (commandResult, error) {
		return commandResult{}, nil
	}}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	audio, err := d.Fetch(context.Background(), "https://example.com/v", "abc")
	if audio.WorkDir != "" {
		defer os.RemoveAll(audio.WorkDir)
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error %v is not a DownloadError", err)
	}
	if !strings.Contains(dlErr.Output, "no audio file") {
		t.Errorf("diagnostic %q does not name the missing file", dlErr.Output)
	}
}

func TestFetchTruncatesLongDiagnostics(t *testing.T) {
	long := strings.Repeat("x", 5000) + "FINAL LINE"
	runner := &fakeRunner{handler: func(string, []string) (commandResult, error) {
		return commandResult{Stderr: long, ExitCode: 1}, errors.New("exit status 1")
	}}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	audio, err := d.Fetch(context.Background(), "https://example.com/v", "abc")
	if audio.WorkDir != "" {
		defer os.RemoveAll(audio.WorkDir)
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error %v is not a DownloadError", err)
	}
	if len(dlErr.Output) > maxDiagnosticBytes+3 {
		t.Errorf("diagnostic is %d bytes, want at most %d", len(dlErr.Output), maxDiagnosticBytes+3)
	}
	if !strings.HasSuffix(dlErr.Output, "FINAL LINE") {
		t.Error("diagnostic lost the tail of stderr")
	}
	if !strings.HasPrefix(dlErr.Output, "...") {
		t.Error("truncated diagnostic not marked as such")
	}
}

func TestProbeParsesVideoInfo(t *testing.T) {
	runner := &fakeRunner{handler: func(_ string, args []string) (commandResult, error) {
		if !hasArg(args, "-J") {
			t.Errorf("probe args missing -J: %v", args)
		}
		return commandResult{Stdout: `{"id":"abc","title":"T","channel":"C","duration":61,"view_count":1234,"upload_date":"20240115"}`}, nil
	}}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	info, err := d.Probe(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.ID != "abc" || info.Title != "T" || info.Duration != 61 || info.ViewCount != 1234 {
		t.Errorf("info = %+v", info)
	}
}

func TestProbeSurfacesToolFailure(t *testing.T) {
	runner := &fakeRunner{handler: func(string, []string) (commandResult, error) {
		return commandResult{Stderr: "ERROR: Unsupported URL", ExitCode: 1}, errors.New("exit status 1")
	}}
	d := &Downloader{binary: "yt-dlp", runner: runner}

	_, err := d.Probe(context.Background(), "https://example.com/v")
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error %v is not a DownloadError", err)
	}
	if !strings.Contains(dlErr.Output, "Unsupported URL") {
		t.Errorf("diagnostic %q does not carry the tool output", dlErr.Output)
	}
}
