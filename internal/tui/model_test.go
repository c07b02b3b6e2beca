package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/remote"
	"github.com/sheetscrape/console/internal/storage"
	"github.com/sheetscrape/console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc       *testutil.FakeService
	ctrl      *controller.Controller
	downloads *storage.LocalStore
	model     *Model
	dir       string
}

func newFixture(t *testing.T, initial string) *fixture {
	t.Helper()
	svc := testutil.NewFakeService()
	t.Cleanup(svc.Close)
	client := remote.NewClient(svc.URL())
	ctrl := controller.New(client, controller.Options{})

	dir := t.TempDir()
	downloads, err := storage.NewLocalStore(filepath.Join(dir, "downloads"))
	require.NoError(t, err)

	if initial != "" {
		initial = writeFile(t, dir, initial)
	}
	m := New(context.Background(), ctrl, Options{
		Downloader:  client,
		Downloads:   downloads,
		InitialPath: initial,
	})
	t.Cleanup(m.Close)
	return &fixture{svc: svc, ctrl: ctrl, downloads: downloads, model: m, dir: dir}
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("sheet"), 0644))
	return path
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func typeText(m *Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestModel_InitialPathIsSelected(t *testing.T) {
	f := newFixture(t, "urls.xlsx")

	assert.Equal(t, "urls.xlsx", f.ctrl.View().FileName)
	assert.Contains(t, f.model.View(), "urls.xlsx")
}

func TestModel_SelectThenSubmit(t *testing.T) {
	f := newFixture(t, "")
	path := writeFile(t, f.dir, "report.xlsx")

	typeText(f.model, path)
	_, cmd := f.model.Update(key(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, "report.xlsx", f.model.view.FileName)
	assert.Empty(t, f.model.input.Value())

	_, cmd = f.model.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd, "enter on empty input submits")
	assert.True(t, f.model.view.InputDisabled)

	msg := cmd()
	require.IsType(t, runDoneMsg{}, msg)
	assert.NoError(t, msg.(runDoneMsg).err)

	v := f.ctrl.View()
	assert.Equal(t, models.PhaseSuccess, v.Phase)
	assert.Equal(t, []string{"uploads/report.xlsx"}, f.svc.Scrapes())
}

func TestModel_SubmitWithoutFile(t *testing.T) {
	f := newFixture(t, "")

	_, cmd := f.model.Update(key(tea.KeyCtrlS))
	assert.Nil(t, cmd)
	assert.Equal(t, controller.MsgNoFile, f.model.view.Message)
	assert.Empty(t, f.svc.Uploads())
}

func TestModel_InvalidSelection(t *testing.T) {
	f := newFixture(t, "")
	path := writeFile(t, f.dir, "notes.txt")

	typeText(f.model, path)
	f.model.Update(key(tea.KeyEnter))
	assert.Empty(t, f.model.view.FileName)
	assert.Contains(t, f.model.View(), "Invalid file format.")

	typeText(f.model, filepath.Join(f.dir, "missing.xlsx"))
	f.model.Update(key(tea.KeyEnter))
	assert.Contains(t, f.model.notice, "missing.xlsx")
}

func TestModel_IgnoresInputWhileBusy(t *testing.T) {
	f := newFixture(t, "a.xlsx")
	release := f.svc.HoldUpload()

	_, cmd := f.model.Update(key(tea.KeyCtrlS))
	require.NotNil(t, cmd)
	require.True(t, f.model.view.InputDisabled)

	_, again := f.model.Update(key(tea.KeyCtrlS))
	assert.Nil(t, again)
	typeText(f.model, "other.xlsx")
	assert.Empty(t, f.model.input.Value())
	assert.Contains(t, f.model.View(), "(disabled)")

	release()
	cmd()
	assert.False(t, f.ctrl.Busy())
}

func TestModel_Download(t *testing.T) {
	f := newFixture(t, "a.xlsx")
	_, cmd := f.model.Update(key(tea.KeyCtrlS))
	require.NotNil(t, cmd)
	cmd()
	f.model.view = f.ctrl.View()
	require.NotNil(t, f.model.view.Download)

	_, cmd = f.model.Update(key(tea.KeyCtrlD))
	require.NotNil(t, cmd)
	msg := cmd()
	f.model.Update(msg)

	assert.Equal(t, "Saved output.xlsx (12 bytes)", f.model.notice)
	files, err := f.downloads.List(0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, models.FileKindDownloaded, files[0].Kind)
	assert.Equal(t, []string{"output.xlsx"}, f.svc.Downloads())
}

func TestModel_ViewMessagesAndQuit(t *testing.T) {
	f := newFixture(t, "")

	v := models.View{Phase: models.PhaseError, Message: "Error: Scraping failed.", SubmitLabel: "Upload & Scrape"}
	_, cmd := f.model.Update(viewMsg{view: v})
	assert.NotNil(t, cmd, "keeps listening for views")
	assert.Contains(t, f.model.View(), "Error: Scraping failed.")

	stale := models.View{Seq: 0, Phase: models.PhaseUploading, Uploading: true}
	f.model.Update(viewMsg{view: models.View{Seq: 7, Phase: models.PhaseSuccess, Message: "Scraping completed successfully"}})
	f.model.Update(viewMsg{view: stale})
	assert.Equal(t, uint64(7), f.model.view.Seq, "an older view does not overwrite a newer one")
	assert.Contains(t, f.model.View(), "Scraping completed successfully")

	_, cmd = f.model.Update(key(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.Equal(t, "", f.model.View())
}
