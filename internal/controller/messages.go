package controller

import (
	"errors"
	"strings"

	"github.com/sheetscrape/console/internal/remote"
)

var (
	ErrInvalidFormat = errors.New("invalid file format")
	ErrNoFile        = errors.New("no file selected")
	ErrBusy          = errors.New("upload or scrape in progress")
)

// User-facing text.
const (
	MsgNoFile        = "Please select a valid Excel file to upload."
	MsgUploading     = "Uploading file..."
	MsgScrapeSuccess = "Scraping completed successfully"

	LabelSubmit   = "Upload & Scrape"
	LabelBusy     = "Processing..."
	LabelDownload = "Download file"

	TextUploading = "Processing..."
	TextScraping  = "Scraping URLs..."
)

// DefaultExtensions are the spreadsheet formats the service accepts.
var DefaultExtensions = []string{"xlsx", "xls"}

// invalidFormatMessage renders e.g. "Invalid file format. Please upload an Excel file (.xlsx or .xls)."
func invalidFormatMessage(exts []string) string {
	dotted := make([]string, len(exts))
	for i, ext := range exts {
		dotted[i] = "." + ext
	}
	var list string
	switch len(dotted) {
	case 0:
	case 1:
		list = dotted[0]
	default:
		list = strings.Join(dotted[:len(dotted)-1], ", ") + " or " + dotted[len(dotted)-1]
	}
	return "Invalid file format. Please upload an Excel file (" + list + ")."
}

// failureLabels maps the client's sentinels to the text shown after "Error: ".
var failureLabels = []struct {
	op    error
	label string
}{
	{remote.ErrUploadFailed, "File upload failed."},
	{remote.ErrScrapeFailed, "Scraping failed."},
	{remote.ErrDownloadFailed, "Download failed."},
}

// errorMessage renders "Error: File upload failed." for a rejected request and
// appends the cause when the request never got an answer.
func errorMessage(err error) string {
	for _, f := range failureLabels {
		if !errors.Is(err, f.op) {
			continue
		}
		var serr *remote.StatusError
		if errors.As(err, &serr) {
			return "Error: " + f.label
		}
		if cause, ok := strings.CutPrefix(err.Error(), f.op.Error()+": "); ok && cause != "" {
			return "Error: " + f.label + " " + cause
		}
		return "Error: " + f.label
	}
	return "Error: " + err.Error()
}

// FailureLabel returns the user-facing label for err, or its own text.
func FailureLabel(err error) string {
	return strings.TrimPrefix(errorMessage(err), "Error: ")
}
