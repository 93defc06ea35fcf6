// Package handler exposes workspaces over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/core/workspace/service"
	"github.com/ncobase/keyvault/core/workspace/structs"
	"github.com/ncobase/keyvault/ctxutil"
	"github.com/ncobase/keyvault/net/resp"
	"github.com/ncobase/keyvault/paging"
)

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/workspaces", h.Create)
	r.GET("/workspaces", h.List)
	r.GET("/workspaces/:workspace_id", h.Get)
	r.PUT("/workspaces/:workspace_id", h.Update)
	r.DELETE("/workspaces/:workspace_id", h.Delete)
}

func (h *Handler) Create(c *gin.Context) {
	var req structs.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	workspace, err := h.service.Create(ctx, ctxutil.GetUserID(ctx), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusCreated, workspace)
}

func (h *Handler) List(c *gin.Context) {
	var params paging.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.List(ctx, ctxutil.GetUserID(ctx), params)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	workspace, err := h.service.Get(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, workspace)
}

func (h *Handler) Update(c *gin.Context) {
	var req structs.UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Update(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	if outcome.Deferred() {
		resp.WithStatusCode(c.Writer, http.StatusAccepted, outcome)
		return
	}
	resp.Success(c.Writer, outcome)
}

func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.service.Delete(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id")); err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusNoContent)
}
