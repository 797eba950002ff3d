// Package models contains the server-side domain records persisted in Postgres.
package models

import "time"

// ArtifactKind says which conversion produced an artifact.
type ArtifactKind string

const (
	KindTextToAudio  ArtifactKind = "text_to_audio"
	KindVideoToAudio ArtifactKind = "video_to_audio"
)

// Valid reports whether k is one of the known kinds.
func (k ArtifactKind) Valid() bool {
	return k == KindTextToAudio || k == KindVideoToAudio
}

// Artifact is a converted audio file owned by exactly one user. Filename
// doubles as the blob store key.
type Artifact struct {
	ID           string
	Filename     string
	OriginalName *string
	Kind         ArtifactKind
	Size         int64
	CreatedAt    time.Time
	UserID       string
}
