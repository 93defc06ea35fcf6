// Package handler exposes one Kind of entry over HTTP under its own path.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	"github.com/ncobase/keyvault/core/entry/service"
	"github.com/ncobase/keyvault/core/entry/structs"
	"github.com/ncobase/keyvault/ctxutil"
	"github.com/ncobase/keyvault/net/resp"
	"github.com/ncobase/keyvault/paging"
)

type Handler struct {
	service *service.Service
	path    string
}

// New returns a handler serving svc under /<path>, e.g. "secrets".
func New(svc *service.Service, path string) *Handler {
	return &Handler{service: svc, path: path}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/environments/:environment_id/"+h.path, h.Create)
	r.GET("/environments/:environment_id/"+h.path, h.List)
	r.GET("/"+h.path+"/:id", h.Get)
	r.GET("/"+h.path+"/:id/versions", h.ListVersions)
	r.PUT("/"+h.path+"/:id", h.Update)
	r.PUT("/"+h.path+"/:id/move", h.Move)
	r.PUT("/"+h.path+"/:id/rollback", h.Rollback)
	r.DELETE("/"+h.path+"/:id", h.Delete)
}

func (h *Handler) Create(c *gin.Context) {
	var req structs.CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Create(ctx, ctxutil.GetUserID(ctx), c.Param("environment_id"), &req)
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
	var read structs.ReadParams
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&read); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.List(ctx, ctxutil.GetUserID(ctx), c.Param("environment_id"), params, read)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) Get(c *gin.Context) {
	var read structs.ReadParams
	if err := c.ShouldBindQuery(&read); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	entry, err := h.service.Get(ctx, ctxutil.GetUserID(ctx), c.Param("id"), read)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, entry)
}

func (h *Handler) ListVersions(c *gin.Context) {
	var params paging.Params
	var read structs.ReadParams
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&read); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.ListVersions(ctx, ctxutil.GetUserID(ctx), c.Param("id"), params, read)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) Update(c *gin.Context) {
	var req structs.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Update(ctx, ctxutil.GetUserID(ctx), c.Param("id"), &req)
	writeOutcome(c, outcome, err)
}

func (h *Handler) Move(c *gin.Context) {
	var req structs.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Move(ctx, ctxutil.GetUserID(ctx), c.Param("id"), &req)
	writeOutcome(c, outcome, err)
}

func (h *Handler) Rollback(c *gin.Context) {
	var req structs.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Rollback(ctx, ctxutil.GetUserID(ctx), c.Param("id"), &req)
	writeOutcome(c, outcome, err)
}

func (h *Handler) Delete(c *gin.Context) {
	var req structs.DeleteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	outcome, err := h.service.Delete(ctx, ctxutil.GetUserID(ctx), c.Param("id"), &req)
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

func writeOutcome(c *gin.Context, outcome *approvalStructs.Outcome[*structs.Entry], err error) {
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
