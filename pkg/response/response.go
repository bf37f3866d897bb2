package response

import "github.com/gin-gonic/gin"

// Envelope shapes shared by every REST handler.

func OK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
