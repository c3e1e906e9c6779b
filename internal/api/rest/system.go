package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	if s.lm == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeInternal, "System status unavailable", nil))
		return
	}
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
