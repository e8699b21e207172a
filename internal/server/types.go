// Package server provides the HTTP server for the audiogram API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CreateVideoRequest is the HTTP request body for rendering a video.
type CreateVideoRequest struct {
	// AudioURL locates the soundtrack. Its duration sets the video duration.
	AudioURL string `json:"audio_url" validate:"required,url"`
	// ImageURL locates the foreground image centered on the canvas.
	ImageURL string `json:"image_url" validate:"required,url"`
	// BgURL locates the background image stretched over the canvas.
	BgURL string `json:"bg_url" validate:"required,url"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "ok" or "degraded".
	Status string `json:"status"`
	// Checks maps each external dependency to "ok" or the reason it is unusable.
	Checks map[string]string `json:"checks,omitempty"`
}
