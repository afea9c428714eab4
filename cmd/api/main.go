// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/doc-forge/internal/config"
	"github.com/yourusername/doc-forge/internal/convert"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// 変換サービスとジョブマネージャーの初期化
	service, err := convert.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to init conversion service: %v", err)
	}
	manager, err := setupJobs(cfg, service)
	if err != nil {
		log.Fatalf("Failed to init job manager: %v", err)
	}
	manager.StartWorkers()

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, service, manager)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "doc-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は変換APIの配線を行います。
func setupRoutes(router *gin.Engine, service *convert.Service, manager jobManager) {
	router.GET("/health", handleHealth)

	scheduler := &conversionScheduler{manager: manager}
	opts := convert.HandlerOptions{Scheduler: scheduler}

	api := router.Group("/api/convert")
	{
		api.POST("/word-to-pdf", convert.UploadHandler(service, convert.WordToPDF, opts))
		api.POST("/pdf-to-word", convert.UploadHandler(service, convert.PDFToWord, opts))
		api.POST("/txt-to-pdf", convert.UploadHandler(service, convert.TxtToPDF, opts))
		api.POST("/image-to-pdf", convert.UploadHandler(service, convert.ImageToPDF, opts))
		api.POST("/excel-to-pdf", convert.UploadHandler(service, convert.ExcelToPDF, opts))

		api.GET("/status/:id", jobStatusHandler(manager))
		api.GET("/download/:id", jobDownloadHandler(manager))
		api.DELETE("/cleanup/:id", jobCleanupHandler(manager))
	}
}
