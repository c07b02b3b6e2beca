package models

// Phase mirrors where the upload-and-scrape sequence currently is.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseUploading Phase = "uploading"
	PhaseScraping  Phase = "scraping"
	PhaseSuccess   Phase = "success"
	PhaseError     Phase = "error"
)

// IndicatorKind identifies which busy flag an indicator belongs to.
type IndicatorKind string

const (
	IndicatorUploading IndicatorKind = "uploading"
	IndicatorScraping  IndicatorKind = "scraping"
)

// Indicator is a spinner plus caption shown while a request is in flight.
type Indicator struct {
	Kind IndicatorKind `json:"kind" msgpack:"kind"`
	Text string        `json:"text" msgpack:"text"`
}

// DownloadLink points at the generated artifact on the remote service.
type DownloadLink struct {
	Name  string `json:"name" msgpack:"name"`
	URL   string `json:"url" msgpack:"url"`
	Label string `json:"label" msgpack:"label"`
}

// View is everything a front end needs to draw the upload form.
// It is recomputed from controller state on every change and never stored.
type View struct {
	SessionID     string        `json:"sessionId,omitempty" msgpack:"sessionId,omitempty"`
	Seq           uint64        `json:"seq" msgpack:"seq"`
	FileName      string        `json:"fileName,omitempty" msgpack:"fileName,omitempty"`
	Phase         Phase         `json:"phase" msgpack:"phase"`
	Message       string        `json:"message,omitempty" msgpack:"message,omitempty"`
	Uploading     bool          `json:"uploading" msgpack:"uploading"`
	Scraping      bool          `json:"scraping" msgpack:"scraping"`
	InputDisabled bool          `json:"inputDisabled" msgpack:"inputDisabled"`
	SubmitLabel   string        `json:"submitLabel" msgpack:"submitLabel"`
	Accept        []string      `json:"accept" msgpack:"accept"`
	Indicators    []Indicator   `json:"indicators" msgpack:"indicators"`
	Download      *DownloadLink `json:"download,omitempty" msgpack:"download,omitempty"`
}

// Busy reports whether either request is in flight.
func (v View) Busy() bool {
	return v.Uploading || v.Scraping
}

// NewerThan reports whether v was produced after other by the same controller.
func (v View) NewerThan(other View) bool {
	return v.Seq > other.Seq
}
