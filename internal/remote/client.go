// Package remote talks to the spreadsheet scraping service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/sheetscrape/console/internal/models"
	"go.uber.org/zap"
)

// DefaultFieldName is the multipart field the service reads the spreadsheet from.
const DefaultFieldName = "file"

// Client calls the /upload, /scrape and /download endpoints of one service.
type Client struct {
	baseURL   string
	http      *http.Client
	fieldName string
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. The default has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFieldName overrides the multipart field name used for uploads.
func WithFieldName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.fieldName = name
		}
	}
}

// NewClient creates a client for the service at baseURL, e.g. "http://127.0.0.1:5000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		fieldName: DefaultFieldName,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service origin this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload sends the spreadsheet as multipart form data and returns the server-side reference.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*models.UploadResult, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(c.fieldName, name)
	if err != nil {
		return nil, wrap(ErrUploadFailed, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, wrap(ErrUploadFailed, err)
	}
	if err := writer.Close(); err != nil {
		return nil, wrap(ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return nil, wrap(ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result models.UploadResult
	if err := c.do(req, ErrUploadFailed, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("upload accepted", zap.String("file", name), zap.String("filepath", result.Filepath))
	return &result, nil
}

// Scrape asks the service to scrape the uploaded file and returns the output artifact name.
func (c *Client) Scrape(ctx context.Context, filepath string) (*models.ScrapeResult, error) {
	payload, err := json.Marshal(map[string]string{"filepath": filepath})
	if err != nil {
		return nil, wrap(ErrScrapeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, wrap(ErrScrapeFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result models.ScrapeResult
	if err := c.do(req, ErrScrapeFailed, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("scrape finished", zap.String("filepath", filepath), zap.String("output", result.OutputFile))
	return &result, nil
}

// DownloadURL returns the address of a generated artifact.
func (c *Client) DownloadURL(outputFile string) string {
	return c.baseURL + "/download/" + url.PathEscape(outputFile)
}

// Download streams a generated artifact into w and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, outputFile string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(outputFile), nil)
	if err != nil {
		return 0, wrap(ErrDownloadFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, wrap(ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, statusError(ErrDownloadFailed, resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, wrap(ErrDownloadFailed, err)
	}
	c.logger.Debug("artifact downloaded", zap.String("output", outputFile), zap.Int64("bytes", n))
	return n, nil
}

// do executes req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, op error, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return wrap(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := statusError(op, resp)
		c.logger.Warn("service rejected request",
			zap.String("url", req.URL.String()),
			zap.Int("status", serr.StatusCode),
			zap.String("detail", serr.Detail))
		return serr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return wrap(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// statusError reads the service's {"error": "..."} body, if any.
func statusError(op error, resp *http.Response) *StatusError {
	serr := &StatusError{Op: op, StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &body); err == nil {
		serr.Detail = body.Error
	}
	return serr
}
