package models

// DiffCountRequest asks for a diff & connect count over two images of the
// same scene
type DiffCountRequest struct {
	First  string `json:"first" binding:"required"`
	Second string `json:"second" binding:"required"`
}

// SingleImageRequest carries the one image used by the cascade count and the
// equalize transform
type SingleImageRequest struct {
	Image string `json:"image" binding:"required"`
}

// EncodedImage is the output image ready for inline display
type EncodedImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mime_type"`
	DataURI  string `json:"data_uri"`
}

// CountResponse represents a successful pipeline run
type CountResponse struct {
	RequestID         string       `json:"request_id"`
	Strategy          string       `json:"strategy"`
	VehicleCount      int          `json:"vehicle_count"`
	Image             EncodedImage `json:"image"`
	Sources           []string     `json:"sources"`
	ProcessingTimeSec float64      `json:"processing_time_sec"`
	Timestamp         string       `json:"timestamp"`
}

// ErrorResponse represents an error response. It never carries an image so a
// client cannot show a stale count.
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status     string   `json:"status"`
	Backend    string   `json:"backend"`
	DataDir    string   `json:"data_dir"`
	Strategies []string `json:"strategies"`
}
