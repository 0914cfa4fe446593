// Package apperr defines the closed set of failure kinds the API can report
// and the single place they are rendered as HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Kind int

const (
	Authentication Kind = iota
	Authorization
	Validation
	NotAvailable
	Internal
)

// Error carries a user-facing message plus an optional wrapped cause.
// The cause never reaches the response body outside dev mode.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Status() int {
	switch e.Kind {
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case NotAvailable:
		return http.StatusNotFound
	case Internal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Respond writes the uniform {success:false, message} envelope. Unknown error
// values are reported as a generic internal failure so driver and library
// messages never leak. In dev mode the underlying detail is attached.
func Respond(c *gin.Context, env string, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Wrap(Internal, "Internal server error", err)
	}

	body := gin.H{"success": false, "message": e.Message}
	if env == "dev" && e.Err != nil {
		body["detail"] = e.Err.Error()
	}
	c.JSON(e.Status(), body)
}

// Abort renders the error and stops the handler chain. Used by middleware.
func Abort(c *gin.Context, env string, err error) {
	Respond(c, env, err)
	c.Abort()
}
