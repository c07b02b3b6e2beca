// Package tui is the interactive terminal front end for the upload form.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/render"
	"github.com/sheetscrape/console/internal/storage"
	"go.uber.org/zap"
)

// Downloader fetches a generated artifact from the service.
type Downloader interface {
	Download(ctx context.Context, outputFile string, w io.Writer) (int64, error)
}

type viewMsg struct {
	view models.View
}

type runDoneMsg struct {
	err error
}

type downloadedMsg struct {
	info *models.FileInfo
	err  error
}

// Model is the bubbletea model wrapping one controller.
type Model struct {
	ctx        context.Context
	ctrl       *controller.Controller
	downloader Downloader
	downloads  storage.Store
	logger     *zap.Logger

	input   textinput.Model
	spinner spinner.Model
	view    models.View
	updates chan models.View
	cancel  func()

	notice   string
	quitting bool
}

// Options configures New.
type Options struct {
	Downloader  Downloader
	Downloads   storage.Store // where ctrl+d saves artifacts; nil disables downloading
	Logger      *zap.Logger
	InitialPath string
}

// New creates the model and subscribes it to ctrl. A file given in opts.InitialPath is pre-selected.
func New(ctx context.Context, ctrl *controller.Controller, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "path/to/urls.xlsx"
	ti.Prompt = "File path: "
	ti.CharLimit = 1024
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		ctx:        ctx,
		ctrl:       ctrl,
		downloader: opts.Downloader,
		downloads:  opts.Downloads,
		logger:     logger,
		input:      ti,
		spinner:    sp,
		view:       ctrl.View(),
		updates:    make(chan models.View, 64),
	}
	done := make(chan struct{})
	unsubscribe := ctrl.Subscribe(func(v models.View) {
		select {
		case m.updates <- v:
		case <-done:
		}
	})
	m.cancel = func() {
		unsubscribe()
		close(done)
	}

	if opts.InitialPath != "" {
		m.selectPath(opts.InitialPath)
	}
	return m
}

// Close detaches the model from its controller.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForView())
}

func (m *Model) waitForView() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		return viewMsg{view: <-ch}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case viewMsg:
		if !m.view.NewerThan(msg.view) {
			m.view = msg.view
		}
		return m, m.waitForView()

	case runDoneMsg:
		if msg.err != nil {
			m.logger.Info("run failed", zap.Error(msg.err))
		}
		return m, nil

	case downloadedMsg:
		if msg.err != nil {
			m.notice = controller.FailureLabel(msg.err)
			m.logger.Warn("download failed", zap.Error(msg.err))
		} else {
			m.notice = fmt.Sprintf("Saved %s (%d bytes)", msg.info.Name, msg.info.Size)
			m.logger.Info("artifact saved", zap.String("file", msg.info.Name), zap.Int64("size", msg.info.Size))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		m.Close()
		return m, tea.Quit
	}

	// Input is disabled while a request is in flight.
	if m.view.InputDisabled {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		if path := strings.TrimSpace(m.input.Value()); path != "" {
			m.input.Reset()
			m.selectPath(path)
			return m, nil
		}
		return m, m.submit()
	case "ctrl+s":
		return m, m.submit()
	case "ctrl+d":
		return m, m.download()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// selectPath hands a local file to the controller. A missing path behaves like a cancelled picker.
func (m *Model) selectPath(path string) {
	m.notice = ""
	file, err := models.SelectPath(path)
	if err != nil {
		m.notice = err.Error()
		return
	}
	if err := m.ctrl.SelectFile(file); err != nil {
		m.logger.Debug("file rejected", zap.String("path", path), zap.Error(err))
	}
	m.view = m.ctrl.View()
}

func (m *Model) submit() tea.Cmd {
	m.notice = ""
	done, err := m.ctrl.Start(m.ctx)
	m.view = m.ctrl.View()
	if err != nil {
		return nil
	}
	return func() tea.Msg {
		return runDoneMsg{err: <-done}
	}
}

func (m *Model) download() tea.Cmd {
	link := m.view.Download
	if link == nil || m.downloader == nil || m.downloads == nil {
		return nil
	}
	m.notice = "Downloading " + link.Name + "..."
	ctx, downloader, store, name := m.ctx, m.downloader, m.downloads, link.Name
	return func() tea.Msg {
		var buf bytes.Buffer
		if _, err := downloader.Download(ctx, name, &buf); err != nil {
			return downloadedMsg{err: err}
		}
		info, err := store.Save(name, models.FileKindDownloaded, &buf)
		return downloadedMsg{info: info, err: err}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(render.Text(m.view, m.spinner.View()))
	b.WriteString("\n")
	if m.view.InputDisabled {
		b.WriteString("File path: (disabled)\n")
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}

	help := "enter: select path / submit when empty • ctrl+s: submit • esc: quit"
	if m.view.Download != nil && m.downloads != nil {
		help += " • ctrl+d: download"
	}
	b.WriteString("\n" + help + "\n")
	return b.String()
}

// Run starts the program and blocks until the user quits.
func Run(m *Model, opts ...tea.ProgramOption) error {
	defer m.Close()
	_, err := tea.NewProgram(m, opts...).Run()
	return err
}
