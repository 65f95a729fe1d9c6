package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/rest/response"
)

// AdminToken admits only requests carrying "Authorization: Bearer <token>".
// An empty token closes the route to every caller.
func AdminToken(token string) gin.HandlerFunc {
	want := []byte(token)

	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			response.Forbidden(c)
			return
		}

		c.Next()
	}
}
