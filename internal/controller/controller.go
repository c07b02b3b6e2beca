// Package controller holds the upload-and-scrape form state and sequences the remote calls.
package controller

import (
	"context"
	"strings"
	"sync"

	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/upload"
	"go.uber.org/zap"
)

// Service is the remote scraping service as the controller sees it.
type Service interface {
	upload.Service
	DownloadURL(outputFile string) string
}

// Recorder receives every finished run.
type Recorder interface {
	RecordRun(ctx context.Context, run *models.Run) error
}

// Options configures a Controller. The zero value is usable.
type Options struct {
	SessionID  string
	Extensions []string // defaults to DefaultExtensions
	Logger     *zap.Logger
	Recorder   Recorder
}

type subscriber struct {
	id int
	fn func(models.View)
}

// Controller is one upload form: the selected file, the status message, the output
// artifact and the two busy flags. Front ends read it through View and Subscribe.
type Controller struct {
	service    Service
	pipeline   *upload.Pipeline
	recorder   Recorder
	logger     *zap.Logger
	sessionID  string
	extensions []string
	invalidMsg string

	mu         sync.Mutex
	file       *models.SelectedFile
	message    string
	outputFile string
	uploading  bool
	scraping   bool
	phase      models.Phase
	seq        uint64 // bumped on every published change
	subs       []subscriber
	nextSubID  int

	inflight sync.WaitGroup
}

// New creates a controller talking to service.
func New(service Service, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		exts = append(exts, DefaultExtensions...)
	}

	return &Controller{
		service:    service,
		pipeline:   upload.NewPipeline(service, logger),
		recorder:   opts.Recorder,
		logger:     logger,
		sessionID:  opts.SessionID,
		extensions: exts,
		invalidMsg: invalidFormatMessage(exts),
		phase:      models.PhaseIdle,
	}
}

// SessionID returns the id the controller was created with.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// SelectFile validates and stores a picked file. A nil file is ignored.
func (c *Controller) SelectFile(file *models.SelectedFile) error {
	if file == nil {
		return nil
	}

	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.allowed(file.Extension()) {
		c.file = nil
		c.message = c.invalidMsg
		c.phase = models.PhaseError
		v, subs := c.snapshotLocked()
		c.mu.Unlock()
		publish(v, subs)
		return ErrInvalidFormat
	}
	c.file = file
	c.message = ""
	c.phase = models.PhaseIdle
	v, subs := c.snapshotLocked()
	c.mu.Unlock()

	publish(v, subs)
	return nil
}

// Submit runs the whole upload-and-scrape sequence and waits for it.
func (c *Controller) Submit(ctx context.Context) (*models.ScrapeResult, error) {
	done, err := c.Start(ctx)
	if err != nil {
		return nil, err
	}
	if err := <-done; err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &models.ScrapeResult{OutputFile: c.outputFile}, nil
}

// Start checks the preconditions and marks the upload as in flight before returning.
// The network sequence continues in the background; its final error is sent on the channel.
func (c *Controller) Start(ctx context.Context) (<-chan error, error) {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.file == nil {
		c.message = MsgNoFile
		c.phase = models.PhaseError
		v, subs := c.snapshotLocked()
		c.mu.Unlock()
		publish(v, subs)
		return nil, ErrNoFile
	}

	file := c.file
	c.outputFile = ""
	c.uploading = true
	c.message = MsgUploading
	c.phase = models.PhaseUploading
	run := c.pipeline.Begin(c.sessionID, file)
	c.inflight.Add(1)
	v, subs := c.snapshotLocked()
	c.mu.Unlock()
	publish(v, subs)

	done := make(chan error, 1)
	go func() {
		defer c.inflight.Done()
		done <- c.run(ctx, run, file)
	}()
	return done, nil
}

// Wait blocks until the sequence started by Start, if any, has finished and been recorded.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// run performs the upload step and, on success, hands its result to the scrape step.
func (c *Controller) run(ctx context.Context, run *models.Run, file *models.SelectedFile) error {
	defer c.record(ctx, run)

	ref, err := c.pipeline.Upload(ctx, run, file)
	if err != nil {
		c.update(func() {
			c.uploading = false
			c.message = errorMessage(err)
			c.phase = models.PhaseError
		})
		return err
	}
	return c.scrape(ctx, run, ref)
}

// scrape raises its own busy flag before the upload flag drops, so the two indicators
// overlap for one view.
func (c *Controller) scrape(ctx context.Context, run *models.Run, ref models.UploadResult) error {
	c.update(func() {
		c.scraping = true
		c.phase = models.PhaseScraping
	})
	c.update(func() {
		c.uploading = false
	})

	out, err := c.pipeline.Scrape(ctx, run, ref)
	c.update(func() {
		if err != nil {
			c.message = errorMessage(err)
			c.phase = models.PhaseError
		} else {
			c.message = MsgScrapeSuccess
			c.outputFile = out.OutputFile
			c.phase = models.PhaseSuccess
		}
		c.scraping = false
		c.uploading = false
	})
	return err
}

func (c *Controller) record(ctx context.Context, run *models.Run) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("failed to record run", zap.String("run", run.ID), zap.Error(err))
	}
}

// View renders the current state.
func (c *Controller) View() models.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Busy reports whether a sequence is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

// OutputFile returns the artifact name of the last successful run, if it is still current.
func (c *Controller) OutputFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputFile
}

// Subscribe registers fn to receive the new view after every state change.
// fn is called without the controller lock held and must not block for long.
func (c *Controller) Subscribe(fn func(models.View)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	v, subs := c.snapshotLocked()
	c.mu.Unlock()
	publish(v, subs)
}

// snapshotLocked stamps a new sequence number, so subscribers can drop a view
// that reaches them after a newer one.
func (c *Controller) snapshotLocked() (models.View, []func(models.View)) {
	c.seq++
	fns := make([]func(models.View), len(c.subs))
	for i, s := range c.subs {
		fns[i] = s.fn
	}
	return c.viewLocked(), fns
}

func publish(v models.View, subs []func(models.View)) {
	for _, fn := range subs {
		fn(v)
	}
}

func (c *Controller) viewLocked() models.View {
	busy := c.busyLocked()
	v := models.View{
		SessionID:     c.sessionID,
		Seq:           c.seq,
		Phase:         c.phase,
		Message:       c.message,
		Uploading:     c.uploading,
		Scraping:      c.scraping,
		InputDisabled: busy,
		SubmitLabel:   LabelSubmit,
		Accept:        make([]string, len(c.extensions)),
		Indicators:    []models.Indicator{},
	}
	for i, ext := range c.extensions {
		v.Accept[i] = "." + ext
	}
	if busy {
		v.SubmitLabel = LabelBusy
	}
	if c.file != nil {
		v.FileName = c.file.Name
	}
	if c.uploading {
		v.Indicators = append(v.Indicators, models.Indicator{Kind: models.IndicatorUploading, Text: TextUploading})
	}
	if c.scraping {
		v.Indicators = append(v.Indicators, models.Indicator{Kind: models.IndicatorScraping, Text: TextScraping})
	}
	if c.outputFile != "" && !busy {
		v.Download = &models.DownloadLink{
			Name:  c.outputFile,
			URL:   c.service.DownloadURL(c.outputFile),
			Label: LabelDownload,
		}
	}
	return v
}

func (c *Controller) busyLocked() bool {
	return c.uploading || c.scraping
}

func (c *Controller) allowed(ext string) bool {
	for _, e := range c.extensions {
		if e == ext {
			return true
		}
	}
	return false
}
