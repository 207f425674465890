package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/service"
)

// serveAudio streams an open blob or redirects to an external location.
func serveAudio(c *gin.Context, src *service.AudioSource, cacheControl string) {
	if src.RedirectURL != "" {
		c.Redirect(http.StatusFound, src.RedirectURL)
		return
	}

	obj := src.Object
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, obj.Body, map[string]string{
		"Cache-Control": cacheControl,
	})
}
