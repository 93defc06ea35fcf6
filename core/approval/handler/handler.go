// Package handler exposes approvals over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/core/approval/service"
	"github.com/ncobase/keyvault/core/approval/structs"
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
	r.GET("/approvals/:approval_id", h.Get)
	r.PUT("/approvals/:approval_id", h.UpdateReason)
	r.POST("/approvals/:approval_id/approve", h.Approve)
	r.POST("/approvals/:approval_id/reject", h.Reject)
	r.DELETE("/approvals/:approval_id", h.Delete)
	r.GET("/workspaces/:workspace_id/approvals", h.ListForWorkspace)
	r.GET("/workspaces/:workspace_id/approvals/mine", h.ListForUser)
}

func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	detail, err := h.service.GetByID(ctx, ctxutil.GetUserID(ctx), c.Param("approval_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, detail)
}

func (h *Handler) UpdateReason(c *gin.Context) {
	var req structs.UpdateReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	approval, err := h.service.UpdateReason(ctx, ctxutil.GetUserID(ctx), c.Param("approval_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, approval)
}

func (h *Handler) Approve(c *gin.Context) {
	ctx := c.Request.Context()
	approval, err := h.service.Approve(ctx, ctxutil.GetUserID(ctx), c.Param("approval_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, approval)
}

func (h *Handler) Reject(c *gin.Context) {
	ctx := c.Request.Context()
	approval, err := h.service.Reject(ctx, ctxutil.GetUserID(ctx), c.Param("approval_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, approval)
}

func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.service.Delete(ctx, ctxutil.GetUserID(ctx), c.Param("approval_id")); err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusNoContent)
}

func (h *Handler) ListForWorkspace(c *gin.Context) {
	var f structs.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.ListForWorkspace(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), f)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) ListForUser(c *gin.Context) {
	var f structs.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.ListForUser(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), f)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}
