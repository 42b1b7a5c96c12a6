package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollbook/internal/policy"
)

const actorKey = "actor"

// RequireAuth enforces bearer JWT tokens signed with HS256 and stores
// the resolved actor on the request context.
func RequireAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, policy.Actor{
			UserID:    claims.Subject,
			Username:  claims.Username,
			Role:      claims.Role,
			TeacherID: claims.TeacherID,
		})
		c.Next()
	}
}

// Actor returns the actor resolved by RequireAuth; the zero Actor when
// the middleware did not run.
func Actor(c *gin.Context) policy.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(policy.Actor); ok {
			return a
		}
	}
	return policy.Actor{}
}
