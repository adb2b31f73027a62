package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitewise/platform/internal/domain/audit"
	"github.com/sitewise/platform/internal/domain/rbac"
	"github.com/sitewise/platform/internal/domain/user"
)

// Response is the envelope every endpoint returns
type Response struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse carries a machine-readable code plus a human message
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   &ErrorResponse{Code: code, Message: message},
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request data",
			Details: err.Error(),
		},
	})
}

// respondDomainError maps domain sentinel errors to HTTP statuses;
// anything unrecognized is a 500.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rbac.ErrCompanyNotFound):
		respondError(c, http.StatusNotFound, "COMPANY_NOT_FOUND", "Company not found")
	case errors.Is(err, rbac.ErrRoleNotFound):
		respondError(c, http.StatusNotFound, "ROLE_NOT_FOUND", "Role not found")
	case errors.Is(err, rbac.ErrPermissionNotFound):
		respondError(c, http.StatusNotFound, "PERMISSION_NOT_FOUND", "Permission not found")
	case errors.Is(err, rbac.ErrTemplateNotFound):
		respondError(c, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "Role template not found")
	case errors.Is(err, rbac.ErrUserNotFound), errors.Is(err, user.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, audit.ErrEntryNotFound):
		respondError(c, http.StatusNotFound, "AUDIT_ENTRY_NOT_FOUND", "Audit entry not found")
	case errors.Is(err, rbac.ErrRoleAlreadyAssigned):
		respondError(c, http.StatusConflict, "ROLE_ALREADY_ASSIGNED", "User already holds this role in the company")
	case errors.Is(err, rbac.ErrPermissionAlreadyGranted):
		respondError(c, http.StatusConflict, "PERMISSION_ALREADY_GRANTED", "Role already holds this permission")
	case errors.Is(err, rbac.ErrDomainTaken):
		respondError(c, http.StatusConflict, "DOMAIN_TAKEN", "Another company already uses this domain")
	case errors.Is(err, rbac.ErrReservedCompanyID):
		respondError(c, http.StatusBadRequest, "RESERVED_COMPANY_ID", "Company ID 0 is reserved for the platform tenant")
	case errors.Is(err, rbac.ErrInvalidConfiguration):
		respondError(c, http.StatusBadRequest, "INVALID_CONFIGURATION", "Invalid configuration")
	case errors.Is(err, rbac.ErrCompanySuspended):
		respondError(c, http.StatusForbidden, "COMPANY_SUSPENDED", "Company is suspended")
	case errors.Is(err, rbac.ErrCompanyAccessDenied):
		respondError(c, http.StatusForbidden, "COMPANY_ACCESS_DENIED", "User has no access to this company")
	case errors.Is(err, rbac.ErrPermissionDenied):
		respondError(c, http.StatusForbidden, "PERMISSION_DENIED", "Permission denied")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
