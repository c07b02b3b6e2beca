// fake_service.go - In-process stand-in for the remote scraping service
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"

	"github.com/labstack/echo/v4"
)

// UploadCall is one request received on /upload.
type UploadCall struct {
	FileName string
	Data     []byte
}

// FakeService implements /upload, /scrape and /download/:name the way the real service does.
// Responses can be overridden per endpoint to simulate failures.
type FakeService struct {
	Server *httptest.Server

	mu          sync.Mutex
	uploads     []UploadCall
	scrapes     []string
	downloads   []string
	uploadDir   string
	outputFile  string
	artifacts   map[string][]byte
	uploadFail  int
	scrapeFail  int
	uploadGate  *gate
	scrapeGate  *gate
	rawUploadFn func() (int, string)
}

// NewFakeService starts a fake service. Close it with Close.
func NewFakeService() *FakeService {
	f := &FakeService{
		uploadDir:  "uploads",
		outputFile: "output.xlsx",
		artifacts:  map[string][]byte{"output.xlsx": []byte("PK-fake-xlsx")},
	}

	e := echo.New()
	e.HideBanner = true
	e.POST("/upload", f.handleUpload)
	e.POST("/scrape", f.handleScrape)
	e.GET("/download/:name", f.handleDownload)

	f.Server = httptest.NewServer(e)
	return f
}

// URL returns the base address of the fake service.
func (f *FakeService) URL() string {
	return f.Server.URL
}

// gate blocks a handler until opened.
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

func (g *gate) wait() {
	if g != nil {
		<-g.ch
	}
}

// Close shuts the server down, releasing any held requests first.
func (f *FakeService) Close() {
	f.mu.Lock()
	for _, g := range []*gate{f.uploadGate, f.scrapeGate} {
		if g != nil {
			g.open()
		}
	}
	f.mu.Unlock()
	f.Server.Close()
}

// FailUpload makes /upload answer with the given status code.
func (f *FakeService) FailUpload(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadFail = status
}

// FailScrape makes /scrape answer with the given status code.
func (f *FakeService) FailScrape(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapeFail = status
}

// RawUpload makes /upload answer with an arbitrary status and body.
func (f *FakeService) RawUpload(fn func() (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawUploadFn = fn
}

// SetOutput changes the artifact name and content produced by /scrape.
func (f *FakeService) SetOutput(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputFile = name
	f.artifacts[name] = data
}

// HoldUpload blocks /upload until the returned func is called.
func (f *FakeService) HoldUpload() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := newGate()
	f.uploadGate = g
	return g.open
}

// HoldScrape blocks /scrape until the returned func is called.
func (f *FakeService) HoldScrape() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := newGate()
	f.scrapeGate = g
	return g.open
}

// Uploads returns the requests received on /upload.
func (f *FakeService) Uploads() []UploadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UploadCall(nil), f.uploads...)
}

// Scrapes returns the filepath of every request received on /scrape.
func (f *FakeService) Scrapes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scrapes...)
}

// Downloads returns the artifact names requested on /download.
func (f *FakeService) Downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

func (f *FakeService) handleUpload(c echo.Context) error {
	f.mu.Lock()
	g := f.uploadGate
	f.mu.Unlock()
	g.wait()

	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file provided"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, UploadCall{FileName: file.Filename, Data: data})
	fail := f.uploadFail
	raw := f.rawUploadFn
	f.mu.Unlock()

	if raw != nil {
		status, body := raw()
		return c.String(status, body)
	}
	if fail != 0 {
		return c.JSON(fail, map[string]string{"error": "upload rejected"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":  "File uploaded successfully",
		"filepath": path.Join(f.uploadDir, file.Filename),
	})
}

func (f *FakeService) handleScrape(c echo.Context) error {
	f.mu.Lock()
	g := f.scrapeGate
	f.mu.Unlock()
	g.wait()

	var req struct {
		Filepath string `json:"filepath"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.Filepath == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "File not found"})
	}

	f.mu.Lock()
	f.scrapes = append(f.scrapes, req.Filepath)
	fail := f.scrapeFail
	out := f.outputFile
	f.mu.Unlock()

	if fail != 0 {
		return c.JSON(fail, map[string]string{"error": "An error occurred: scrape exploded"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":     "Scraping completed",
		"output_file": out,
	})
}

func (f *FakeService) handleDownload(c echo.Context) error {
	name := c.Param("name")

	f.mu.Lock()
	f.downloads = append(f.downloads, name)
	data, ok := f.artifacts[name]
	f.mu.Unlock()

	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
