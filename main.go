package main

import (
	"context"
	"net/http"
	"time"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"freeimages/config"
	"freeimages/metrics"
	"freeimages/settings"
	"freeimages/storage"
	"freeimages/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalln("Error loading configuration:", err)
	}
	setupLogging(cfg.Log)

	vips.Startup(nil)
	defer vips.Shutdown()

	ctx := context.Background()
	marshal, err := storage.NewMarshaler(ctx, cfg.ResponseCache.TTL)
	if err != nil {
		logrus.Fatalln("Error creating cache:", err)
	}

	local := settings.NewLocal(settings.NewStore(cfg.Server.ConfigFile))
	local.Config()

	sessions, err := NewSessions(cfg.Session)
	if err != nil {
		logrus.Fatalln("Error creating session keys:", err)
	}

	var r2opts []storage.Option
	if cfg.Storage.Endpoint != "" {
		r2opts = append(r2opts, storage.WithEndpoint(cfg.Storage.Endpoint))
	}
	buckets := func(ctx context.Context, cf settings.Cloudflare) (upload.Bucket, error) {
		b, err := storage.NewR2(ctx, cf, r2opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	getters := func(ctx context.Context, cf settings.Cloudflare) (storage.Getter, error) {
		b, err := storage.NewR2(ctx, cf, r2opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	objects := storage.NewObjectCache(marshal, time.Duration(cfg.Storage.CacheTime)*time.Second)
	images := NewSourceRouter(local,
		NewS3ProviderWithObjectCache(local, objects, getters),
		NewHTTPProvider(&http.Client{Timeout: 30 * time.Second}),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	r := NewRouter(&Server{
		Config:   cfg,
		Local:    local,
		Sessions: sessions,
		Uploads:  upload.NewService(local, buckets, upload.WithPresignTTL(cfg.Storage.PresignTTL)),
		Images:   images,
		Cache:    marshal,
		Registry: reg,
	})

	logrus.Infof("Listening on %s, settings in %s", cfg.Server.Addr, cfg.Server.ConfigFile)
	if err := r.Run(cfg.Server.Addr); err != nil {
		logrus.Fatalln(err)
	}
}
