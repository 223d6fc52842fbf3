package storage

import (
	"time"

	"github.com/RyanBlaney/beatwizard/features"
)

// Beat is a stored beat with its descriptive metadata
type Beat struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string         `gorm:"index:idx_beat_user" json:"user_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	StorageURL      string         `json:"storage_url"`
	BPM             float64        `json:"bpm"`
	KeySignature    string         `gorm:"default:C" json:"key_signature"`
	DurationSeconds float64        `json:"duration_seconds"`
	IsPublic        bool           `json:"is_public"`
	CreatedAt       time.Time      `json:"created_at"`
	Features        *AudioFeatures `gorm:"foreignKey:BeatID;constraint:OnDelete:CASCADE" json:"features,omitempty"`
}

func (Beat) TableName() string { return "beats" }

// AudioFeatures is the feature row of one beat. Columns the extractor did
// not fill stay 0.
type AudioFeatures struct {
	ID                     uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	BeatID                 string `gorm:"type:varchar(36);uniqueIndex:idx_features_beat" json:"beat_id"`
	features.FeatureVector `gorm:"embedded"`
}

func (AudioFeatures) TableName() string { return "audio_features" }

// BeatMetadata describes a beat being stored. BPM and KeySignature fall
// back to the extracted tempo and "C" when empty.
type BeatMetadata struct {
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	StorageURL   string  `json:"storage_url"`
	BPM          float64 `json:"bpm"`
	KeySignature string  `json:"key_signature"`
	IsPublic     bool    `json:"is_public"`
}

// SimilarBeat is one result of a similarity query
type SimilarBeat struct {
	BeatID string  `json:"beat_id"`
	Title  string  `json:"title"`
	BPM    float64 `json:"bpm"`
	Score  float64 `json:"score"`
}
