package models

// GenerateForm is the multipart body of POST /api/generate. Only the image is required.
type GenerateForm struct {
	Prompt   string `form:"prompt"`
	Strength string `form:"strength"`
}

// GenerateResponse is returned once the output file is on disk
type GenerateResponse struct {
	ImageURL string `json:"imageUrl"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is served on /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
