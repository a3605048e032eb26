package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"JAD-loans-backend/internal/loans"
	"JAD-loans-backend/internal/platform/apidoc"
	"JAD-loans-backend/internal/platform/db"
	"JAD-loans-backend/internal/platform/httpx"
)

func main() {
	// config
	cfg, err := db.LoadConfig(db.ConfigFilePath)
	if err != nil {
		log.Fatalf("[ERROR] config: %v", err)
	}
	log.Printf("[INFO] mode:%s version:%s\n", cfg.Mode, cfg.Version)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("[ERROR] db: %v", err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Recovery(cfg.IsDev()))
	_ = r.SetTrustedProxies(nil)
	r.MaxMultipartMemory = cfg.Upload.MaxBytes

	if cfg.IsDev() {
		// CORS (dev only)
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID", "X-Batch-ID"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
		apidoc.RegisterRoutes(r)
	}

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	// /api/v1
	api := r.Group("/api/v1")
	loans.RegisterRoutes(api, loans.NewService(conn, cfg), cfg.IsDev())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.UseTLS() {
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(cfg.Certificate.Cert, cfg.Certificate.Key)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
