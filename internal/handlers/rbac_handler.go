package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/domain/rbac"
	"github.com/sitewise/platform/internal/middleware"
)

// RBACHandler handles the company, catalog, role and membership
// endpoints plus the effective-permission queries.
type RBACHandler struct {
	svc    rbac.Service
	logger *zap.Logger
}

// NewRBACHandler creates a new RBAC handler
func NewRBACHandler(svc rbac.Service, logger *zap.Logger) *RBACHandler {
	return &RBACHandler{
		svc:    svc,
		logger: logger,
	}
}

func actorID(c *gin.Context) (uuid.UUID, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "MISSING_IDENTITY", "Missing caller identity")
		return uuid.Nil, false
	}
	return identity.UserID, true
}

func companyIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("company_id"), 10, 64)
	if err != nil || id < 0 {
		respondError(c, http.StatusBadRequest, "INVALID_COMPANY_ID", "Invalid company ID")
		return 0, false
	}
	return id, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// CreateCompanyRequest represents a company creation request
type CreateCompanyRequest struct {
	ID     int64  `json:"id" binding:"required"`
	Name   string `json:"name" binding:"required,max=255"`
	Domain string `json:"domain" binding:"max=255"`
}

// CreateCompany handles POST /companies
func (h *RBACHandler) CreateCompany(c *gin.Context) {
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	company := &rbac.Company{
		ID:     req.ID,
		Name:   req.Name,
		Domain: req.Domain,
		Status: rbac.CompanyStatusActive,
	}
	if err := h.svc.CreateCompany(c.Request.Context(), company); err != nil {
		h.logger.Error("failed to create company", zap.Int64("company_id", req.ID), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	respondCreated(c, company)
}

// GetCompany handles GET /companies/:company_id
func (h *RBACHandler) GetCompany(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}

	company, err := h.svc.GetCompany(c.Request.Context(), companyID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, company)
}

// ListCompanies handles GET /companies
func (h *RBACHandler) ListCompanies(c *gin.Context) {
	companies, err := h.svc.ListCompanies(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, companies)
}

// CreatePermissionRequest represents a catalog entry creation request
type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Category    string `json:"category" binding:"max=100"`
	Resource    string `json:"resource" binding:"required,max=100"`
	Action      string `json:"action" binding:"required,max=100"`
	Description string `json:"description"`
}

// CreatePermission handles POST /permissions
func (h *RBACHandler) CreatePermission(c *gin.Context) {
	var req CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	permission := &rbac.Permission{
		Name:        req.Name,
		Category:    req.Category,
		Resource:    req.Resource,
		Action:      req.Action,
		Description: req.Description,
	}
	if err := h.svc.CreatePermission(c.Request.Context(), permission); err != nil {
		respondDomainError(c, err)
		return
	}
	respondCreated(c, permission)
}

// GetPermission handles GET /permissions/:permission_id
func (h *RBACHandler) GetPermission(c *gin.Context) {
	permissionID, ok := uuidParam(c, "permission_id")
	if !ok {
		return
	}

	permission, err := h.svc.GetPermission(c.Request.Context(), permissionID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, permission)
}

// ListPermissions handles GET /permissions
func (h *RBACHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.svc.ListPermissions(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, permissions)
}

// CreateTemplateRequest represents a role template creation request
type CreateTemplateRequest struct {
	Name          string      `json:"name" binding:"required,max=255"`
	Category      string      `json:"category" binding:"max=100"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

// CreateRoleTemplate handles POST /role-templates
func (h *RBACHandler) CreateRoleTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	template := &rbac.RoleTemplate{
		Name:          req.Name,
		Category:      req.Category,
		PermissionIDs: req.PermissionIDs,
	}
	if err := h.svc.CreateRoleTemplate(c.Request.Context(), template); err != nil {
		respondDomainError(c, err)
		return
	}
	respondCreated(c, template)
}

// GetRoleTemplate handles GET /role-templates/:template_id
func (h *RBACHandler) GetRoleTemplate(c *gin.Context) {
	templateID, ok := uuidParam(c, "template_id")
	if !ok {
		return
	}

	template, err := h.svc.GetRoleTemplate(c.Request.Context(), templateID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, template)
}

// ListRoleTemplates handles GET /role-templates?category=
func (h *RBACHandler) ListRoleTemplates(c *gin.Context) {
	templates, err := h.svc.ListRoleTemplates(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, templates)
}

// InstantiateTemplateRequest represents a template instantiation request
type InstantiateTemplateRequest struct {
	CompanyID int64  `json:"company_id" binding:"required"`
	Name      string `json:"name" binding:"required,max=255"`
}

// InstantiateTemplate handles POST /role-templates/:template_id/instantiate
func (h *RBACHandler) InstantiateTemplate(c *gin.Context) {
	templateID, ok := uuidParam(c, "template_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req InstantiateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	role, err := h.svc.InstantiateTemplate(c.Request.Context(), req.CompanyID, templateID, req.Name, actor)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondCreated(c, role)
}

// CreateRoleRequest represents a role creation request
type CreateRoleRequest struct {
	Name              string      `json:"name" binding:"required,max=255"`
	Description       string      `json:"description"`
	TemplateID        *uuid.UUID  `json:"template_id,omitempty"`
	CustomPermissions []uuid.UUID `json:"custom_permissions,omitempty"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
}

// CreateRole handles POST /companies/:company_id/roles
func (h *RBACHandler) CreateRole(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	role := &rbac.Role{
		CompanyID:         &companyID,
		Name:              req.Name,
		Description:       req.Description,
		TemplateID:        req.TemplateID,
		CustomPermissions: req.CustomPermissions,
		Lifecycle:         rbac.ActiveLifecycle(req.ExpiresAt),
	}
	if err := h.svc.CreateRole(c.Request.Context(), role, actor); err != nil {
		h.logger.Error("failed to create role",
			zap.Int64("company_id", companyID),
			zap.String("name", req.Name),
			zap.Error(err))
		respondDomainError(c, err)
		return
	}
	respondCreated(c, role)
}

// GetRole handles GET /roles/:role_id
func (h *RBACHandler) GetRole(c *gin.Context) {
	roleID, ok := uuidParam(c, "role_id")
	if !ok {
		return
	}

	role, err := h.svc.GetRole(c.Request.Context(), roleID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, role)
}

// UpdateRoleRequest represents a role update request
type UpdateRoleRequest struct {
	Name              string      `json:"name" binding:"required,max=255"`
	Description       string      `json:"description"`
	CustomPermissions []uuid.UUID `json:"custom_permissions,omitempty"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
}

// UpdateRole handles PUT /roles/:role_id
func (h *RBACHandler) UpdateRole(c *gin.Context) {
	roleID, ok := uuidParam(c, "role_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	role, err := h.svc.GetRole(c.Request.Context(), roleID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	role.Name = req.Name
	role.Description = req.Description
	role.CustomPermissions = req.CustomPermissions
	role.Lifecycle.ExpiresAt = req.ExpiresAt

	if err := h.svc.UpdateRole(c.Request.Context(), role, actor); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, role)
}

// DeleteRole handles DELETE /roles/:role_id
func (h *RBACHandler) DeleteRole(c *gin.Context) {
	roleID, ok := uuidParam(c, "role_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteRole(c.Request.Context(), roleID, actor); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Role deleted"})
}

// ListRoles handles GET /companies/:company_id/roles
func (h *RBACHandler) ListRoles(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}

	roles, err := h.svc.ListRoles(c.Request.Context(), companyID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, roles)
}

// GrantPermissionRequest represents a role-permission grant request
type GrantPermissionRequest struct {
	PermissionID uuid.UUID  `json:"permission_id" binding:"required"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// GrantPermission handles POST /roles/:role_id/permissions
func (h *RBACHandler) GrantPermission(c *gin.Context) {
	roleID, ok := uuidParam(c, "role_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.svc.AssignPermissionToRole(c.Request.Context(), roleID, req.PermissionID, actor, req.ExpiresAt); err != nil {
		respondDomainError(c, err)
		return
	}
	respondCreated(c, gin.H{"role_id": roleID, "permission_id": req.PermissionID})
}

// RevokePermission handles DELETE /roles/:role_id/permissions/:permission_id
func (h *RBACHandler) RevokePermission(c *gin.Context) {
	roleID, ok := uuidParam(c, "role_id")
	if !ok {
		return
	}
	permissionID, ok := uuidParam(c, "permission_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.svc.RevokePermissionFromRole(c.Request.Context(), roleID, permissionID, actor); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Permission revoked"})
}

// AssignUserRequest represents a company membership request
type AssignUserRequest struct {
	UserID    uuid.UUID  `json:"user_id" binding:"required"`
	RoleID    uuid.UUID  `json:"role_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AssignUserToCompany handles POST /companies/:company_id/users
func (h *RBACHandler) AssignUserToCompany(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req AssignUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.svc.AssignUserToCompany(c.Request.Context(), companyID, req.UserID, req.RoleID, actor, req.ExpiresAt); err != nil {
		respondDomainError(c, err)
		return
	}
	respondCreated(c, gin.H{"company_id": companyID, "user_id": req.UserID, "role_id": req.RoleID})
}

// RevokeUserFromCompany handles
// DELETE /companies/:company_id/users/:user_id/roles/:role_id
func (h *RBACHandler) RevokeUserFromCompany(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	roleID, ok := uuidParam(c, "role_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.svc.RevokeUserFromCompany(c.Request.Context(), companyID, userID, roleID, actor); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Assignment revoked"})
}

// AssignProjectRequest represents a project assignment request
type AssignProjectRequest struct {
	UserID           uuid.UUID   `json:"user_id" binding:"required"`
	ExtraPermissions []uuid.UUID `json:"extra_permissions,omitempty"`
}

// AssignUserToProject handles
// POST /companies/:company_id/projects/:project_id/users
func (h *RBACHandler) AssignUserToProject(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req AssignProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.svc.AssignUserToProject(c.Request.Context(), companyID, projectID, req.UserID, req.ExtraPermissions, actor); err != nil {
		respondDomainError(c, err)
		return
	}
	respondCreated(c, gin.H{"company_id": companyID, "project_id": projectID, "user_id": req.UserID})
}

// RevokeUserFromProject handles
// DELETE /companies/:company_id/projects/:project_id/users/:user_id
func (h *RBACHandler) RevokeUserFromProject(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.svc.RevokeUserFromProject(c.Request.Context(), companyID, projectID, userID, actor); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Project assignment revoked"})
}

// GetEffectivePermissions handles
// GET /companies/:company_id/users/:user_id/permissions
func (h *RBACHandler) GetEffectivePermissions(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	eff, err := h.svc.GetUserEffectivePermissions(c.Request.Context(), userID, companyID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, eff)
}

// CheckPermissionsRequest represents a permission check request
type CheckPermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids" binding:"required,min=1"`
	// Mode is "any" (default) or "all".
	Mode string `json:"mode" binding:"omitempty,oneof=any all"`
}

// CheckPermissions handles
// POST /companies/:company_id/users/:user_id/permissions/check
func (h *RBACHandler) CheckPermissions(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	var req CheckPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var allowed bool
	var err error
	if req.Mode == "all" {
		allowed, err = h.svc.HasAllPermissions(c.Request.Context(), userID, companyID, req.PermissionIDs)
	} else {
		allowed, err = h.svc.HasAnyPermissions(c.Request.Context(), userID, companyID, req.PermissionIDs)
	}
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"allowed": allowed})
}

// InvalidatePermissions handles
// POST /companies/:company_id/users/:user_id/permissions/invalidate
func (h *RBACHandler) InvalidatePermissions(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	if err := h.svc.InvalidateUserPermissions(c.Request.Context(), userID, companyID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Cache invalidated"})
}

// GetUserContext handles GET /companies/:company_id/users/:user_id/context
func (h *RBACHandler) GetUserContext(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	userContext, err := h.svc.GetUserContext(c.Request.Context(), userID, companyID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, userContext)
}
