package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Afaqak/asr-worker/internal/domain"
	"github.com/Afaqak/asr-worker/internal/logger"
)

// unstageTimeout bounds the compensating delete. It runs on its own
// context so a canceled request still gets cleaned up.
const unstageTimeout = 30 * time.Second

// Fetcher downloads the audio for one source URL into a scratch directory.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, itemID string) (domain.LocalAudio, error)
}

// Stager moves a local file into object storage behind a signed URL and
// removes it again when a run has to be compensated.
type Stager interface {
	Stage(ctx context.Context, audio domain.LocalAudio, itemID string) (domain.StagedAudio, error)
	Unstage(ctx context.Context, staged domain.StagedAudio) error
}

// Submitter hands a signed audio URL to the transcription service.
type Submitter interface {
	Submit(ctx context.Context, audioURL string) (domain.TranscriptionJob, error)
}

// Pipeline sequences one request through download, staging, and
// submission. It owns every resource a run creates: the scratch directory
// unconditionally, the staged object until submission succeeds.
type Pipeline struct {
	fetcher   Fetcher
	stager    Stager
	submitter Submitter
	log       *logger.Logger
}

func New(fetcher Fetcher, stager Stager, submitter Submitter, log *logger.Logger) *Pipeline {
	return &Pipeline{fetcher: fetcher, stager: stager, submitter: submitter, log: log}
}

// Run executes one attempt. Stage errors come back unchanged so callers
// can tell which stage failed; the scratch directory is removed on every
// exit path.
func (p *Pipeline) Run(ctx context.Context, req domain.ProcessRequest) (domain.ProcessResult, error) {
	log := p.log.WithField("item_id", domain.SanitizeItemID(req.VideoID))

	audio, err := p.fetcher.Fetch(ctx, req.YouTubeURL, req.VideoID)
	defer p.removeWorkDir(audio.WorkDir, log)
	if err != nil {
		log.WithError(err).Warn("download failed")
		return domain.ProcessResult{}, err
	}
	log.WithField("file", filepath.Base(audio.FilePath)).Info("audio downloaded")

	staged, err := p.stager.Stage(ctx, audio, req.VideoID)
	if err != nil {
		log.WithError(err).Warn("staging failed")
		return domain.ProcessResult{}, err
	}
	log.WithField("object_key", staged.ObjectKey).Info("audio staged")

	job, err := p.submitter.Submit(ctx, staged.SignedURL)
	if err != nil {
		p.compensate(staged, log)
		log.WithError(err).Warn("submission failed")
		return domain.ProcessResult{}, err
	}
	log.WithField("external_id", job.ID).Info("transcription job submitted")

	return domain.ProcessResult{
		ExternalID: job.ID,
		AudioURL:   staged.SignedURL,
		ObjectKey:  staged.ObjectKey,
		Bucket:     staged.Bucket,
	}, nil
}

// compensate removes the staged object after a failed submission. Its own
// failure is only logged; the submit error stays the run's outcome.
func (p *Pipeline) compensate(staged domain.StagedAudio, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), unstageTimeout)
	defer cancel()

	if err := p.stager.Unstage(ctx, staged); err != nil {
		log.WithError(err).WithField("object_key", staged.ObjectKey).Error("compensating delete failed, staged object may be orphaned")
		return
	}
	log.WithField("object_key", staged.ObjectKey).Info("staged object removed after failed submission")
}

func (p *Pipeline) removeWorkDir(dir string, log *logrus.Entry) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).WithField("work_dir", dir).Warn("scratch dir removal failed")
	}
}
