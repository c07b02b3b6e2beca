package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/remote"
	"go.uber.org/zap"
)

// Service is the remote side of the pipeline.
type Service interface {
	Upload(ctx context.Context, name string, r io.Reader) (*models.UploadResult, error)
	Scrape(ctx context.Context, filepath string) (*models.ScrapeResult, error)
}

// Pipeline runs the two remote steps of an upload-and-scrape sequence.
// The scrape step only accepts the typed result of the upload step.
type Pipeline struct {
	service Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewPipeline creates a pipeline over the given service.
func NewPipeline(service Service, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

// Begin opens the bookkeeping record for a new sequence.
func (p *Pipeline) Begin(sessionID string, file *models.SelectedFile) *models.Run {
	run := &models.Run{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		FileName:  file.Name,
		Status:    models.RunStatusRunning,
		Stage:     models.RunStageUpload,
		StartedAt: p.now(),
	}
	p.logger.Info("run started", zap.String("run", shortID(run.ID)), zap.String("file", file.Name))
	return run
}

// Upload sends the file and returns the server-side reference.
func (p *Pipeline) Upload(ctx context.Context, run *models.Run, file *models.SelectedFile) (models.UploadResult, error) {
	run.Stage = models.RunStageUpload

	src, err := file.Open()
	if err != nil {
		err = fmt.Errorf("%w: %v", remote.ErrUploadFailed, err)
		p.fail(run, err)
		return models.UploadResult{}, err
	}
	defer src.Close()

	res, err := p.service.Upload(ctx, file.Name, src)
	if err != nil {
		p.fail(run, err)
		return models.UploadResult{}, err
	}

	run.Filepath = res.Filepath
	p.logger.Info("upload complete", zap.String("run", shortID(run.ID)), zap.String("filepath", res.Filepath))
	return *res, nil
}

// Scrape runs the scrape job for an uploaded file.
func (p *Pipeline) Scrape(ctx context.Context, run *models.Run, ref models.UploadResult) (models.ScrapeResult, error) {
	run.Stage = models.RunStageScrape

	res, err := p.service.Scrape(ctx, ref.Filepath)
	if err != nil {
		p.fail(run, err)
		return models.ScrapeResult{}, err
	}

	run.OutputFile = res.OutputFile
	run.Stage = models.RunStageDone
	run.Status = models.RunStatusSuccess
	finished := p.now()
	run.FinishedAt = &finished
	p.logger.Info("run complete",
		zap.String("run", shortID(run.ID)),
		zap.String("output", res.OutputFile),
		zap.Duration("took", run.Duration()))
	return *res, nil
}

// fail marks the run as failed in its current stage.
func (p *Pipeline) fail(run *models.Run, err error) {
	run.Status = models.RunStatusError
	run.Error = err.Error()
	finished := p.now()
	run.FinishedAt = &finished

	fields := []zap.Field{
		zap.String("run", shortID(run.ID)),
		zap.String("stage", string(run.Stage)),
		zap.Error(err),
	}
	if d, ok := err.(interface{ Describe() string }); ok {
		fields = append(fields, zap.String("detail", d.Describe()))
	}
	p.logger.Warn("run failed", fields...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
