package api

import (
	"errors"
	"strconv"

	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/gin-gonic/gin"
)

// respondError writes err as the JSON error body with the status its code
// maps to. Anything that is not an AppError becomes a 500.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.StatusCode(), appErr.Response())
}

func badRequest(c *gin.Context, message string, cause error) {
	respondError(c, apperrors.Validation(message, cause))
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

var (
	errAmountWithReference = errors.New("amount is taken from the referenced object")
	errManyReferences      = errors.New("only one of order_id, booking_id and donation_id may be set")
)
