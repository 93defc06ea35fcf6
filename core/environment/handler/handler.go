// Package handler exposes environments over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/core/environment/service"
	"github.com/ncobase/keyvault/core/environment/structs"
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
	r.POST("/projects/:project_id/environments", h.Create)
	r.GET("/projects/:project_id/environments", h.List)
	r.GET("/environments/:environment_id", h.Get)
	r.PUT("/environments/:environment_id", h.Update)
	r.DELETE("/environments/:environment_id", h.Delete)
}

func (h *Handler) Create(c *gin.Context) {
	var req structs.CreateEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Create(ctx, ctxutil.GetUserID(ctx), c.Param("project_id"), &req)
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
	result, err := h.service.List(ctx, ctxutil.GetUserID(ctx), c.Param("project_id"), params)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	env, err := h.service.Get(ctx, ctxutil.GetUserID(ctx), c.Param("environment_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, env)
}

func (h *Handler) Update(c *gin.Context) {
	var req structs.UpdateEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Update(ctx, ctxutil.GetUserID(ctx), c.Param("environment_id"), &req)
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
	outcome, err := h.service.Delete(ctx, ctxutil.GetUserID(ctx), c.Param("environment_id"), &req)
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
