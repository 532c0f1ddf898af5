package api

import (
	"fmt"

	"github.com/odit-bit/tambal/tambal"
)

// Request
type FixRequest = tambal.FixRequest

// Response
type FixResponse = tambal.FixResponse

type RateRequest = tambal.RateRequest

type RateResponse = tambal.RateResponse

type Stats = tambal.Stats

// Error is a non-2xx answer of the server.
type Error struct {
	StatusCode int
	// user facing message from the body, may be empty
	Message string
	Body    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: status %d, body: %s", e.StatusCode, e.Body)
}
