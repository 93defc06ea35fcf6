// Package handler exposes projects over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/core/project/service"
	"github.com/ncobase/keyvault/core/project/structs"
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

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/workspaces/:workspace_id/projects", h.Create)
	r.GET("/workspaces/:workspace_id/projects", h.List)
	r.GET("/projects/:project_id", h.Get)
	r.PUT("/projects/:project_id", h.Update)
	r.DELETE("/projects/:project_id", h.Delete)
}

func (h *Handler) Create(c *gin.Context) {
	var req structs.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Create(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	if outcome.Deferred() {
		resp.WithStatusCode(c.Writer, http.StatusAccepted, outcome)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusCreated, outcome)
}

func (h *Handler) List(c *gin.Context) {
	var params paging.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.List(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), params)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	project, err := h.service.Get(ctx, ctxutil.GetUserID(ctx), c.Param("project_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, project)
}

func (h *Handler) Update(c *gin.Context) {
	var req structs.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Update(ctx, ctxutil.GetUserID(ctx), c.Param("project_id"), &req)
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
	var req structs.DeleteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Delete(ctx, ctxutil.GetUserID(ctx), c.Param("project_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	if outcome.Deferred() {
		resp.WithStatusCode(c.Writer, http.StatusAccepted, outcome)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusNoContent)
}
