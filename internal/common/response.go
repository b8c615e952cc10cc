package common

import (
	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Fail writes the {msg} error body used by every endpoint.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"msg": msg})
}

// FailWith merges extra fields into the error body.
func FailWith(c *gin.Context, status int, msg string, extra gin.H) {
	body := gin.H{"msg": msg}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
