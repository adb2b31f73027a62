// Package middleware carries the gin middleware chain: caller identity
// extraction, permission guards and rate limiting. Authentication is
// out of scope; identity headers are trusted as already verified by the
// edge.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderUserID carries the authenticated caller's user ID.
	HeaderUserID = "X-User-ID"
	// HeaderCompanyID carries the tenant the caller is acting in.
	HeaderCompanyID = "X-Company-ID"

	identityContextKey = "caller_identity"
)

// Identity is the caller identity extracted from trusted headers.
type Identity struct {
	UserID    uuid.UUID
	CompanyID int64
}

// RequireIdentity extracts and validates the identity headers, aborting
// with 401 when they are missing or malformed.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.GetHeader(HeaderUserID))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "MISSING_IDENTITY", "Missing or invalid user identity")
			return
		}

		companyID, err := strconv.ParseInt(c.GetHeader(HeaderCompanyID), 10, 64)
		if err != nil || companyID < 0 {
			abortWithError(c, http.StatusUnauthorized, "MISSING_COMPANY", "Missing or invalid company identity")
			return
		}

		c.Set(identityContextKey, Identity{UserID: userID, CompanyID: companyID})
		c.Next()
	}
}

// CurrentIdentity returns the identity set by RequireIdentity. The
// second return is false on routes that skipped the middleware.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}
