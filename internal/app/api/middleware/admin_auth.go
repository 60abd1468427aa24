package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"github.com/bukukita/billing/pkg/config"
	"github.com/bukukita/billing/pkg/response"
)

const adminSubjectKey = "adminSubject"

// AdminAuth guards the operational endpoints with a bearer token signed by
// the ops tooling. Claims carry the operator identity in "sub" for the audit
// trail; no per-role scoping, anyone with a valid token is an operator.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.AdminJWTSecret)
	return func(c *gin.Context) {
		// An unset secret must not verify tokens against the empty key; the
		// admin surface stays closed until one is configured.
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.ErrorT[any](response.APIResponseCodeUnauthorized, "admin auth is not configured"))
			return
		}
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		if sub, ok := claims["sub"].(string); ok {
			c.Set(adminSubjectKey, sub)
		}
		c.Next()
	}
}

// AdminSubject returns the operator identity set by AdminAuth.
func AdminSubject(c *gin.Context) string {
	sub, _ := c.Get(adminSubjectKey)
	s, _ := sub.(string)
	return s
}
