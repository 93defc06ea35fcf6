// Package handler exposes the audit log over HTTP.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/core/event/service"
	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/ctxutil"
	"github.com/ncobase/keyvault/net/resp"
)

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/workspaces/:workspace_id/events", h.HandleList)
}

func (h *Handler) HandleList(c *gin.Context) {
	var f structs.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()
	result, err := h.service.List(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), f)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}

	resp.Success(c.Writer, result)
}
