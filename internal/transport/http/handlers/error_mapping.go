package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a usecase sentinel to an HTTP status and client message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError answers with the first matching case. Errors that
// match no case fall back to the given status and are recorded on the gin
// context so the access log carries them.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if cs, ok := matchErrorCase(err, cases); ok {
		c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func matchErrorCase(err error, cases []ErrorCase) (ErrorCase, bool) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			return cs, true
		}
	}
	return ErrorCase{}, false
}
