// Package middleware contains the Gin middleware of the operations surface.
//
// This file implements shared-secret header guards. Comparison is constant
// time; a missing or wrong header is rejected before the handler runs.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderNotifyToken authenticates callers of the internal notify trigger.
const HeaderNotifyToken = "X-Notify-Token"

// SecretEqual reports whether got equals want in constant time. An empty
// want matches anything.
func SecretEqual(got, want string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RequireHeader aborts with status unless header carries secret. An empty
// secret disables the check.
func RequireHeader(header, secret string, status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if SecretEqual(c.GetHeader(header), secret) {
			c.Next()
			return
		}
		code := "forbidden"
		if status == http.StatusUnauthorized {
			code = "unauthorized"
		}
		c.AbortWithStatusJSON(status, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       code,
			"message":    "invalid or missing " + header,
		})
	}
}
