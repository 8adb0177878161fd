package models

import "time"

// ReleaseDescriptor describes the latest published application release.
type ReleaseDescriptor struct {
	Version     Version   `json:"version"`
	ArtifactURL string    `json:"artifact_url"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	PublishedAt time.Time `json:"published_at"`
}

// ModelEntry is one named asset in a model manifest.
type ModelEntry struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum"`
	Size      int64  `json:"size,omitempty"`
	Encrypted bool   `json:"encrypted"`
}

// ModelManifest is the full desired state of the model directory at a
// point in time. Entry order is preserved from the remote source.
type ModelManifest struct {
	Version     Version      `json:"version"`
	Entries     []ModelEntry `json:"entries"`
	PublishedAt time.Time    `json:"published_at,omitempty"`
}
