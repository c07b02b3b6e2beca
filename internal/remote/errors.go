package remote

import (
	"errors"
	"fmt"
)

// Every error returned by Client wraps one of these.
var (
	ErrUploadFailed   = errors.New("file upload failed")
	ErrScrapeFailed   = errors.New("scraping failed")
	ErrDownloadFailed = errors.New("download failed")
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Op         error  // one of the sentinels above
	StatusCode int    // HTTP status returned by the service
	Detail     string // the service's "error" field, if it sent one
}

// Error returns the sentinel text only; status and detail are kept for callers that want them.
func (e *StatusError) Error() string {
	return e.Op.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Op
}

// Describe includes the status code and service detail, for logs.
func (e *StatusError) Describe() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d: %s)", e.Op, e.StatusCode, e.Detail)
}

// wrap attaches the sentinel to a transport or decoding error.
func wrap(op error, err error) error {
	return fmt.Errorf("%w: %v", op, err)
}
