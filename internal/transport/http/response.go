package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	platformerrors "shravan-server-go/internal/platform/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondError writes {"error": message} with the given status.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorResponse{Error: message})
}

// RespondErr maps err's kind onto a status and writes it.
func RespondErr(c *gin.Context, err error) {
	_ = c.Error(err)
	RespondError(c, StatusFor(err), PublicMessage(err))
}

// StatusFor maps error kinds onto HTTP statuses.
func StatusFor(err error) int {
	switch platformerrors.KindOf(err) {
	case platformerrors.KindDecode:
		return http.StatusBadRequest
	case platformerrors.KindReasoning, platformerrors.KindTranscription:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text returned to callers. Uncatalogued failures
// are not described.
func PublicMessage(err error) string {
	var typed *platformerrors.Error
	if !errors.As(err, &typed) {
		return "internal server error"
	}
	switch typed.Kind {
	case platformerrors.KindDecode, platformerrors.KindReasoning, platformerrors.KindTranscription:
		if typed.Cause != nil {
			return typed.Message + ": " + typed.Cause.Error()
		}
		return typed.Message
	default:
		return "internal server error"
	}
}
