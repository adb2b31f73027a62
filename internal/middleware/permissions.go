package middleware

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// PermissionGuard builds route middleware that enforces catalog
// permissions. Platform-company members bypass checks here, as caller
// policy; the engine itself never special-cases them.
type PermissionGuard struct {
	svc rbac.Service

	// (resource, action) -> permission ID. The catalog is immutable, so
	// resolutions never go stale.
	mu       sync.RWMutex
	resolved map[string]uuid.UUID
}

// NewPermissionGuard creates a guard backed by the given service
func NewPermissionGuard(svc rbac.Service) *PermissionGuard {
	return &PermissionGuard{
		svc:      svc,
		resolved: make(map[string]uuid.UUID),
	}
}

// Require returns middleware that allows the request only when the
// caller holds the (resource, action) permission in their company, or
// is a platform user.
func (g *PermissionGuard) Require(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "MISSING_IDENTITY", "Missing caller identity")
			return
		}

		platform, err := g.svc.IsPlatformUser(c.Request.Context(), identity.UserID)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "PERMISSION_CHECK_FAILED", "Failed to check permissions")
			return
		}
		if platform {
			c.Next()
			return
		}

		permissionID, err := g.resolve(c, resource, action)
		if err != nil {
			if errors.Is(err, rbac.ErrPermissionNotFound) {
				abortWithError(c, http.StatusForbidden, "PERMISSION_DENIED", "Permission denied")
				return
			}
			abortWithError(c, http.StatusInternalServerError, "PERMISSION_CHECK_FAILED", "Failed to check permissions")
			return
		}

		allowed, err := g.svc.HasPermission(c.Request.Context(), identity.UserID, identity.CompanyID, permissionID)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "PERMISSION_CHECK_FAILED", "Failed to check permissions")
			return
		}
		if !allowed {
			abortWithError(c, http.StatusForbidden, "PERMISSION_DENIED", "Permission denied")
			return
		}

		c.Next()
	}
}

func (g *PermissionGuard) resolve(c *gin.Context, resource, action string) (uuid.UUID, error) {
	key := resource + ":" + action

	g.mu.RLock()
	id, ok := g.resolved[key]
	g.mu.RUnlock()
	if ok {
		return id, nil
	}

	permission, err := g.svc.GetPermissionByResourceAction(c.Request.Context(), resource, action)
	if err != nil {
		return uuid.Nil, err
	}

	g.mu.Lock()
	g.resolved[key] = permission.ID
	g.mu.Unlock()
	return permission.ID, nil
}
