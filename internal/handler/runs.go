package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"investhor/internal/service"
)

type RunHandler struct {
	Service *service.RunService
	Logger  *zap.Logger
}

func (h *RunHandler) Register(r *gin.Engine) {
	r.POST("/runs/:policy/trigger", h.trigger)
	r.GET("/runs/last", h.last)
}

func (h *RunHandler) trigger(c *gin.Context) {
	policy := c.Param("policy")
	rec, err := h.Service.Trigger(c.Request.Context(), policy)
	if err != nil {
		if errors.Is(err, service.ErrUnknownPolicy) {
			Error(c, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, service.ErrBusy) {
			Error(c, http.StatusConflict, err.Error())
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("triggered run failed", zap.String("policy", policy), zap.Error(err))
		}
		// The record still carries whatever the run managed to submit.
		c.JSON(http.StatusInternalServerError, apiResponse{
			Code:    http.StatusInternalServerError,
			Message: err.Error(),
			Data:    rec,
		})
		return
	}
	Ok(c, rec)
}

func (h *RunHandler) last(c *gin.Context) {
	Ok(c, h.Service.Last())
}
