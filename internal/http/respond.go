package http

import (
	"github.com/gin-gonic/gin"

	errx "github.com/fintalk/server/internal/core/error"
)

// errorEnvelope is the internal error wire shape: {"error": {code, message, details}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    errx.Code `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details"`
}

func newErrorEnvelope(code errx.Code, message string, details any) errorEnvelope {
	return errorEnvelope{Error: errorBody{Code: code, Message: message, Details: details}}
}

// respondError serves a structured error with the status its code maps to.
func respondError(c *gin.Context, code errx.Code, message string, details any) {
	c.JSON(code.HTTPStatus(), newErrorEnvelope(code, message, details))
}

// respondErrx serves any error through the internal vocabulary, falling back
// to INTERNAL_ERROR for unclassified failures.
func respondErrx(c *gin.Context, err error) {
	e := errx.From(err)
	respondError(c, e.Code, e.Message, e.Details)
}

// respondValidation serves a VALIDATION_ERROR with per-field details, in the
// shape {"error": {code, message, details: {field: [problems]}}}.
func respondValidation(c *gin.Context, fields map[string][]string) {
	respondError(c, errx.CodeValidation, "Invalid request data", fields)
}
