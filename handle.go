package main

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"freeimages/metrics"
	"freeimages/settings"
)

func HealthHandle() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ConfigGetHandle serves the redacted document. Without a session the admin
// password is masked as well.
func ConfigGetHandle(local *settings.Local, sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc := settings.Redact(local.Config())
		if !sessions.Authenticated(c) {
			doc = settings.RedactPassword(doc)
		}
		c.JSON(http.StatusOK, doc)
	}
}

func ConfigUpdateHandle(local *settings.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch settings.Patch
		if err := c.ShouldBindJSON(&patch); err != nil || patch == nil {
			metrics.ConfigUpdates.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid configuration payload"})
			return
		}

		doc, err := local.Update(c.Request.Context(), settings.StripMask(patch))
		if errors.Is(err, settings.ErrInvalidPatch) {
			metrics.ConfigUpdates.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logrus.WithError(err).Errorln("Error updating config")
			metrics.ConfigUpdates.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update configuration"})
			return
		}
		metrics.ConfigUpdates.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, settings.Redact(doc))
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func LoginHandle(local *settings.Local, sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
			return
		}

		want := local.Config().App.Security.AdminPassword
		if want == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
			metrics.LoginAttempts.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
			return
		}

		token, err := sessions.Issue()
		if err != nil {
			logrus.WithError(err).Errorln("Error issuing session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		sessions.SetCookie(c, token)
		metrics.LoginAttempts.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func LogoutHandle(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions.ClearCookie(c)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
