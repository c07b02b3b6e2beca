package models

// UploadResult is the service's answer to an upload: where the file now lives server-side.
type UploadResult struct {
	Filepath string `json:"filepath"`
	Message  string `json:"message,omitempty"`
}

// ScrapeResult names the artifact produced by a scrape job.
type ScrapeResult struct {
	OutputFile string `json:"output_file"`
	Message    string `json:"message,omitempty"`
}
