package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// PlatformHandler handles the platform tenant endpoints. Routes using
// it are mounted behind a platform-only guard.
type PlatformHandler struct {
	svc    rbac.Service
	logger *zap.Logger
}

// NewPlatformHandler creates a new platform handler
func NewPlatformHandler(svc rbac.Service, logger *zap.Logger) *PlatformHandler {
	return &PlatformHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListPlatformUsers handles GET /platform/users
func (h *PlatformHandler) ListPlatformUsers(c *gin.Context) {
	users, err := h.svc.GetPlatformUsers(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, users)
}

// CheckPlatformUser handles GET /platform/users/:user_id
func (h *PlatformHandler) CheckPlatformUser(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	platform, err := h.svc.IsPlatformUser(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"user_id": userID, "is_platform": platform})
}

// PromoteToPlatform handles POST /platform/users/:user_id/promote
func (h *PlatformHandler) PromoteToPlatform(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.svc.PromoteToPlatform(c.Request.Context(), userID, actor); err != nil {
		h.logger.Error("failed to promote user to platform",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		respondDomainError(c, err)
		return
	}
	respondCreated(c, gin.H{"user_id": userID, "company_id": rbac.PlatformCompanyID})
}
