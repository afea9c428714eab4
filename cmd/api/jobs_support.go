package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/doc-forge/internal/config"
	"github.com/yourusername/doc-forge/internal/convert"
	"github.com/yourusername/doc-forge/internal/jobs"
)

// jobManager はHTTP層が必要とするジョブ操作の窓口です。
type jobManager interface {
	Schedule(ctx context.Context, sub *convert.Submission) (*jobs.Record, error)
	GetRecord(ctx context.Context, id string) (*jobs.Record, error)
	Cleanup(ctx context.Context, id string) error
}

// conversionScheduler は convert.Scheduler をジョブマネージャーへ委譲します。
type conversionScheduler struct {
	manager jobManager
}

func (s *conversionScheduler) Schedule(ctx context.Context, sub *convert.Submission) error {
	_, err := s.manager.Schedule(ctx, sub)
	return err
}

// setupJobs はレジストリとマネージャーを構成します。QUEUE_REDIS_URL が
// 設定されている場合はレコードも Redis に保持します。
func setupJobs(cfg *config.Config, service *convert.Service) (*jobs.Manager, error) {
	var registry jobs.Registry
	if cfg.QueueRedisURL != "" {
		opt, err := redis.ParseURL(cfg.QueueRedisURL)
		if err != nil {
			return nil, err
		}
		ttlMinutes := cfg.JobExpireMinutes
		if ttlMinutes <= 0 {
			ttlMinutes = 60
		}
		registry = jobs.NewRedisRegistry(redis.NewClient(opt), time.Duration(ttlMinutes)*time.Minute)
	} else {
		registry = jobs.NewMemoryRegistry()
	}

	return jobs.NewManager(cfg, registry, service, log.Default())
}

// jobStatusHandler は GET /api/convert/status/:id のハンドラーを返します。
func jobStatusHandler(manager jobManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    convert.CodeInvalidInput,
				"message": "ジョブIDを指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    convert.CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"job_id":             record.ID,
			"status":             record.Status,
			"progress":           record.Progress(),
			"original_filename":  record.OriginalFilename,
			"converted_filename": record.ConvertedFilename,
		}
		if record.ConversionTime > 0 {
			payload["conversion_time"] = record.ConversionTime
		}
		if record.ErrorMessage != "" {
			payload["error_message"] = record.ErrorMessage
		}
		if record.Status == jobs.StatusCompleted {
			payload["download_url"] = record.DownloadURL
		}

		c.JSON(http.StatusOK, payload)
	}
}

// jobDownloadHandler は GET /api/convert/download/:id のハンドラーを返します。
func jobDownloadHandler(manager jobManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    convert.CodeInvalidInput,
				"message": "ジョブIDを指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    convert.CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		if record.Status != jobs.StatusCompleted {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    convert.CodeNotReady,
				"message": "変換がまだ完了していません。",
			})
			return
		}

		file, err := os.Open(record.ConvertedFilePath)
		if err != nil {
			// COMPLETED なのに成果物がない: 整合性異常としてログに残す
			log.Printf("job %s: converted file missing: %v", record.ID, err)
			c.JSON(http.StatusNotFound, gin.H{
				"code":    convert.CodeFileMissing,
				"message": "変換結果ファイルが見つかりません。",
			})
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "変換結果ファイルの確認に失敗しました。",
			})
			return
		}

		encodedName := url.PathEscape(record.ConvertedFilename)
		contentType := contentTypeForFilename(record.ConvertedFilename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", record.ConvertedFilename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", record.ID)
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
	}
}

// jobCleanupHandler は DELETE /api/convert/cleanup/:id のハンドラーを返します。
func jobCleanupHandler(manager jobManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    convert.CodeInvalidInput,
				"message": "ジョブIDを指定してください。",
			})
			return
		}

		if err := manager.Cleanup(c.Request.Context(), jobID); err != nil {
			if err == jobs.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    convert.CodeJobNotFound,
					"message": "指定されたジョブは存在しません。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの削除に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"job_id":  jobID,
			"message": "ジョブと関連ファイルを削除しました。",
		})
	}
}

func contentTypeForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
