package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xray-diagnosis-service/bodyregion"
	"xray-diagnosis-service/cache"
	"xray-diagnosis-service/classifier"
	"xray-diagnosis-service/config"
	"xray-diagnosis-service/handlers"
	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/metrics"
	"xray-diagnosis-service/middleware"
	"xray-diagnosis-service/router"
	"xray-diagnosis-service/transcriber"
	"xray-diagnosis-service/version"
)

func main() {
	cfg := config.Load()

	log.SetHandler(json.New(os.Stdout))
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.WithFields(log.Fields{
		"version": version.Version,
		"port":    cfg.Port,
	}).Info("starting xray-diagnosis-service")

	profiles, err := bodyregion.LoadProfiles(cfg.BodyRegionProfiles)
	if err != nil {
		log.WithError(err).Fatal("failed to load body region profiles")
	}
	detector := bodyregion.NewDetector(profiles)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	rec := metrics.NewRecorder(registry)

	var fast llm.VisionProvider
	if cfg.ClassifierURL != "" {
		fast = classifier.NewClient(cfg.ClassifierURL, cfg.ProviderTimeout)
	}
	visionRouter := router.New(cfg, fast, rec)
	audioChain := transcriber.New(cfg, rec)
	store := cache.New(cfg.RedisURL, cfg.CacheTTL)
	h := handlers.New(cfg, visionRouter, audioChain, detector, store, rec)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = cfg.MaxUploadBytes

	engine.GET("/health", h.Health)
	engine.GET("/version", h.Version)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, rec)
	api := engine.Group("/api/v3")
	api.GET("/health", h.Health)
	api.GET("/version", h.Version)
	api.Use(limiter.Handler())
	api.POST("/analyze", h.Analyze)
	api.POST("/transcribe", h.Transcribe)
	api.GET("/status", h.Status)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()
	log.WithField("addr", srv.Addr).Info("listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	log.Info("stopped")
}
