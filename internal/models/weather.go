package models

import "time"

// Coordinates is a geocoding match returned by the provider.
type Coordinates struct {
	Name    string  `json:"name"`
	Country string  `json:"country,omitempty"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Locator identifies one stored weather document.
type Locator struct {
	Prefix       string
	Key          string
	Address      string
	LastModified time.Time
}

// AuditRecord is one cache-population event. Field names match the audit
// table columns.
type AuditRecord struct {
	ID        string `json:"id"`
	City      string `json:"city"`
	S3FileURL string `json:"s3_file_url"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse is the body returned for every non-200 answer.
type ErrorResponse struct {
	Message string `json:"message"`
}
