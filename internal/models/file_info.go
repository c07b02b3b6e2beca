package models

import "time"

// FileInfo describes a file held in the local store.
type FileInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"storedAt"`
	Kind     FileKind  `json:"kind"`
}

// FileKind separates staged picks from downloaded artifacts.
type FileKind string

const (
	FileKindStaged     FileKind = "staged"
	FileKindDownloaded FileKind = "downloaded"
)
