// Package handler exposes role and membership administration over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/core/authority/service"
	"github.com/ncobase/keyvault/core/authority/structs"
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
	r.POST("/workspaces/:workspace_id/roles", h.CreateRole)
	r.GET("/workspaces/:workspace_id/roles", h.ListRoles)
	r.GET("/roles/:role_id", h.GetRole)
	r.PUT("/roles/:role_id", h.UpdateRole)
	r.DELETE("/roles/:role_id", h.DeleteRole)

	r.GET("/workspaces/:workspace_id/members", h.ListMembers)
	r.POST("/workspaces/:workspace_id/members", h.Invite)
	r.POST("/workspaces/:workspace_id/members/accept", h.AcceptInvitation)
	r.PUT("/workspaces/:workspace_id/members/:user_id", h.UpdateMemberRoles)
	r.DELETE("/workspaces/:workspace_id/members/:user_id", h.RemoveMember)
}

func (h *Handler) CreateRole(c *gin.Context) {
	var req structs.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	role, err := h.service.CreateRole(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusCreated, role)
}

func (h *Handler) ListRoles(c *gin.Context) {
	var params paging.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.ListRoles(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), params)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) GetRole(c *gin.Context) {
	ctx := c.Request.Context()
	role, err := h.service.GetRole(ctx, ctxutil.GetUserID(ctx), c.Param("role_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, role)
}

func (h *Handler) UpdateRole(c *gin.Context) {
	var req structs.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	role, err := h.service.UpdateRole(ctx, ctxutil.GetUserID(ctx), c.Param("role_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, role)
}

func (h *Handler) DeleteRole(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.service.DeleteRole(ctx, ctxutil.GetUserID(ctx), c.Param("role_id")); err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusNoContent)
}

func (h *Handler) ListMembers(c *gin.Context) {
	var params paging.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	result, err := h.service.ListMembers(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), params)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, result)
}

func (h *Handler) Invite(c *gin.Context) {
	var req structs.InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	membership, err := h.service.Invite(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusCreated, membership)
}

func (h *Handler) AcceptInvitation(c *gin.Context) {
	ctx := c.Request.Context()
	membership, err := h.service.AcceptInvitation(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"))
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, membership)
}

func (h *Handler) UpdateMemberRoles(c *gin.Context) {
	var req structs.UpdateMemberRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	ctx := c.Request.Context()
	membership, err := h.service.UpdateMemberRoles(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), c.Param("user_id"), &req)
	if err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.Success(c.Writer, membership)
}

func (h *Handler) RemoveMember(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.service.RemoveMember(ctx, ctxutil.GetUserID(ctx), c.Param("workspace_id"), c.Param("user_id")); err != nil {
		resp.Error(c.Writer, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusNoContent)
}
