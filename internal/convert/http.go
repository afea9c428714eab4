package convert

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Scheduler はジョブを非同期実行路へ投入するためのインターフェースです。
type Scheduler interface {
	Schedule(ctx context.Context, sub *Submission) error
}

// HandlerOptions はアップロードハンドラーの依存を保持します。
type HandlerOptions struct {
	Scheduler Scheduler
}

// UploadHandler は変換種別ごとのアップロードエンドポイントのハンドラーを返します。
// 検証と保存が済んだ時点で 200 を返し、変換はバックグラウンドで実行されます。
// 複数ファイルが送られた場合は先頭の1件のみを処理します（既知の制限）。
func UploadHandler(svc *Service, t ConversionType, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "multipart/form-data でファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractUploadFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		sub, err := svc.PrepareSubmission(c.Request.Context(), file, t)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if err := opts.Scheduler.Schedule(c.Request.Context(), sub); err != nil {
			svc.DiscardUpload(sub.InputPath)
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":            true,
			"job_id":             sub.JobID,
			"original_filename":  sub.OriginalFilename,
			"converted_filename": sub.ConvertedFilename,
			"file_size":          sub.FileSize,
			"download_url":       fmt.Sprintf("/api/convert/download/%s", sub.JobID),
			"message":            "変換を開始しました。",
		})
	}
}

// RespondWithError は *Error をHTTPステータスへ対応付けて返却します。
func RespondWithError(c *gin.Context, err error) {
	respondWithError(c, err)
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case CodeFileTooLarge:
			status = http.StatusRequestEntityTooLarge
		case CodeJobNotFound, CodeFileMissing:
			status = http.StatusNotFound
		case CodeConversionFailed:
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractUploadFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("変換するファイルを選択してください。")
	}
	if file := form.File["file"]; len(file) > 0 {
		return file[0], nil
	}
	if file := form.File["file[]"]; len(file) > 0 {
		return file[0], nil
	}
	if files := form.File["files"]; len(files) > 0 {
		return files[0], nil
	}
	if alt := form.File["files[]"]; len(alt) > 0 {
		return alt[0], nil
	}
	return nil, errors.New("変換するファイルを選択してください。")
}
