package dto

import "time"

// ClipInfo describes a recorded clip in the clip store.
type ClipInfo struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}
