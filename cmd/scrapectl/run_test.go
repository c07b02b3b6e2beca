package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/remote"
	"github.com/sheetscrape/console/internal/storage"
	"github.com/sheetscrape/console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*testutil.FakeService, *remote.Client, string) {
	t.Helper()
	svc := testutil.NewFakeService()
	t.Cleanup(svc.Close)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "urls.xlsx"), []byte("sheet"), 0644))
	return svc, remote.NewClient(svc.URL()), dir
}

func TestRunPlain_SuccessWithDownload(t *testing.T) {
	svc, client, dir := setup(t)
	downloads, err := storage.NewLocalStore(filepath.Join(dir, "downloads"))
	require.NoError(t, err)

	var out bytes.Buffer
	ctrl := controller.New(client, controller.Options{})
	err = runPlain(context.Background(), ctrl, filepath.Join(dir, "urls.xlsx"), &out, client, downloads)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "idle", lines[0])
	assert.Equal(t, "uploading | Processing... | Uploading file...", lines[1])
	assert.Equal(t, "scraping | Processing... | Scraping URLs... | Uploading file...", lines[2])
	assert.Contains(t, lines[len(lines)-2], "success | Scraping completed successfully | Download file: "+svc.URL()+"/download/output.xlsx")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "saved "))

	files, err := downloads.List(0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "output.xlsx", files[0].Name)
}

func TestRunPlain_Failure(t *testing.T) {
	svc, client, dir := setup(t)
	svc.FailScrape(http.StatusInternalServerError)

	var out bytes.Buffer
	ctrl := controller.New(client, controller.Options{})
	err := runPlain(context.Background(), ctrl, filepath.Join(dir, "urls.xlsx"), &out, client, nil)
	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out.String(), "error | Error: Scraping failed.")
	assert.Empty(t, svc.Downloads())
}

func TestRunPlain_InvalidFile(t *testing.T) {
	svc, client, dir := setup(t)
	path := filepath.Join(dir, "urls.csv")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	var out bytes.Buffer
	ctrl := controller.New(client, controller.Options{})
	err := runPlain(context.Background(), ctrl, path, &out, client, nil)
	require.ErrorIs(t, err, controller.ErrInvalidFormat)
	assert.Contains(t, out.String(), "Invalid file format.")
	assert.Empty(t, svc.Uploads())
}

func TestPrintRuns(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printRuns(&out, nil))
	assert.Equal(t, "no runs recorded\n", out.String())

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	runs := []*models.Run{
		{FileName: "a.xlsx", Status: models.RunStatusSuccess, OutputFile: "out.xlsx", StartedAt: started, FinishedAt: &finished},
		{FileName: "b.xlsx", Status: models.RunStatusError, Error: "file upload failed", StartedAt: started},
	}

	out.Reset()
	require.NoError(t, printRuns(&out, runs))
	text := out.String()
	assert.Contains(t, text, "STARTED")
	assert.Contains(t, text, "out.xlsx")
	assert.Contains(t, text, "1.5s")
	assert.Contains(t, text, "file upload failed")
}

func TestHistoryCmd_RejectsBadLimit(t *testing.T) {
	for _, limit := range []string{"0", "-5"} {
		cmd := newHistoryCmd()
		cmd.SetArgs([]string{"--limit=" + limit})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--limit must be at least 1")
	}
}
