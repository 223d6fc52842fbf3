package server

import (
	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/storage"
	"github.com/RyanBlaney/beatwizard/transcode"
)

// AnalyzeResponse is the response for POST /analyze-beat
type AnalyzeResponse struct {
	Success  bool                    `json:"success"`
	Analysis *features.FeatureVector `json:"analysis"`
	Key      string                  `json:"key"`
	Waveform transcode.WaveformInfo  `json:"waveform"`
	Filename string                  `json:"filename"`
}

// StoreBeatResponse is the response for POST /beats
type StoreBeatResponse struct {
	Message  string                  `json:"message"`
	ID       string                  `json:"id"`
	Title    string                  `json:"title"`
	Key      string                  `json:"key"`
	Analysis *features.FeatureVector `json:"analysis"`
}

// ListBeatsResponse is the response for GET /beats
type ListBeatsResponse struct {
	Beats []storage.Beat `json:"beats"`
	Count int            `json:"count"`
}

// DeleteBeatResponse is the response for DELETE /beats/{id}
type DeleteBeatResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// SimilarBeatsResponse is the response for GET /beats/{id}/similar
type SimilarBeatsResponse struct {
	BeatID  string                `json:"beat_id"`
	Similar []storage.SimilarBeat `json:"similar"`
	Count   int                   `json:"count"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
