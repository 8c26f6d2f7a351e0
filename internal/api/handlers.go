package api

import (
	"strconv"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes err as {"error", "code"} with the status its code maps
// to. Internal causes never reach the client.
func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
		"error": apperr.Message(err),
		"code":  apperr.CodeOf(err),
	})
}

func bindError(c *gin.Context, err error) {
	respondError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request body", err))
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, apperr.ErrInvalidToken)
	}
	return id, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.InvalidArg("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, apperr.InvalidArg("invalid id: " + s)
		}
		out = append(out, id)
	}
	return out, nil
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}
