// Package apierr defines typed errors that carry an HTTP status, mirroring
// the teacher's pkg/error convention of attaching status codes to sentinel
// error values instead of inspecting error strings at the transport layer.
package apierr

import "net/http"

// NotFoundError marks a lookup miss that should surface as HTTP 404.
type NotFoundError string

func (e NotFoundError) Error() string    { return string(e) }
func (e NotFoundError) ErrCode() string  { return "NOT_FOUND" }
func (e NotFoundError) StatusCode() int  { return http.StatusNotFound }

// ConflictError marks a uniqueness or state violation that should surface
// as HTTP 409 (e.g. a second BotReply for the same InboundMessage).
type ConflictError string

func (e ConflictError) Error() string   { return string(e) }
func (e ConflictError) ErrCode() string { return "CONFLICT" }
func (e ConflictError) StatusCode() int { return http.StatusConflict }

// ValidationError marks a malformed request body.
type ValidationError string

func (e ValidationError) Error() string   { return string(e) }
func (e ValidationError) ErrCode() string { return "VALIDATION_ERROR" }
func (e ValidationError) StatusCode() int { return http.StatusBadRequest }

// StatusCoder is implemented by errors that know their own HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusOf extracts the HTTP status for an error, defaulting to 500.
func StatusOf(err error) int {
	if sc, ok := err.(StatusCoder); ok {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
