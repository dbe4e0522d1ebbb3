package main

import (
	"context"

	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freeimages/config"
	"freeimages/settings"
	"freeimages/upload"
)

// Server holds everything the routes share.
type Server struct {
	Config   *config.Config
	Local    *settings.Local
	Sessions *Sessions
	Uploads  *upload.Service
	Images   *SourceRouter
	Cache    *marshaler.Marshaler
	Registry *prometheus.Registry
}

func NewRouter(s *Server) *gin.Engine {
	cfg := s.Config

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogHandle())

	r.GET("/health", HealthHandle())
	if s.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.POST("/login", RateLimitHandle("login", cfg.RateLimit.LoginRate, cfg.RateLimit.LoginBurst), LoginHandle(s.Local, s.Sessions))
	api.POST("/logout", LogoutHandle(s.Sessions))
	api.GET("/config", ConfigGetHandle(s.Local, s.Sessions))
	api.POST("/config", RequireSessionHandle(s.Sessions), ConfigUpdateHandle(s.Local))

	uploads := api.Group("/upload", LimitBodyHandle(cfg.Server.MaxUpload))
	uploads.POST("", PresignHandle(s.Local, s.Uploads))
	uploads.POST("/direct", DirectUploadHandle(s.Uploads))
	uploads.POST("/proxy", ProxyUploadHandle(s.Uploads))

	handles := []gin.HandlerFunc{
		CacheControlHandle(cfg.CacheControl),
		ParseImageRequestHandle(),
	}
	if cfg.Signing.Enabled {
		handles = append(handles, VerifyHMACHandle(cfg.Signing))
	}
	handles = append(handles, AllowedDomainHandle(s.Local), NegotiateFormatHandle(s.Local))
	if cfg.ResponseCache.Enabled && s.Cache != nil {
		handles = append(handles, CacheRequestHandle(context.Background(), s.Cache))
	}
	handles = append(handles, GetImageHandle(s.Images))
	r.GET("/_image", handles...)

	return r
}
