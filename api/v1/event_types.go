package v1

import (
	"errors"
	"strings"
	"time"
)

// Event is a scheduled event as served by the events API.
type Event struct {
	ID          string    `json:"id" yaml:"id"`
	Date        time.Time `json:"date" yaml:"date"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string    `json:"location,omitempty" yaml:"location,omitempty"`
}

// EventSpec is the client-supplied part of an event used for create and update.
type EventSpec struct {
	Date        time.Time `json:"date" yaml:"date"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string    `json:"location,omitempty" yaml:"location,omitempty"`
}

func (s EventSpec) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("title is required")
	}
	if s.Date.IsZero() {
		return errors.New("date is required")
	}
	return nil
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	// RequestID echoes the X-Request-ID of the failed request.
	RequestID string `json:"requestId,omitempty"`
}

// RequestIDHeader correlates client requests with API logs.
const RequestIDHeader = "X-Request-ID"
