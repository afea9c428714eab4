// Package jobs は変換ジョブのライフサイクル管理を提供します。
package jobs

import "time"

// Status はジョブの実行状態を表します。
// 遷移は pending -> processing -> {completed|failed} の一方向のみです。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record は変換ジョブ1件の現在状態を表します。
type Record struct {
	ID                string     `json:"id"`
	OriginalFilename  string     `json:"original_filename"`
	ConvertedFilename string     `json:"converted_filename"`
	FromFormat        string     `json:"from_format"`
	ToFormat          string     `json:"to_format"`
	Status            Status     `json:"status"`
	FileSize          int64      `json:"file_size"`
	ConvertedFileSize int64      `json:"converted_file_size,omitempty"`
	ConversionTime    float64    `json:"conversion_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	DownloadURL       string     `json:"download_url,omitempty"`
	FilePath          string     `json:"file_path,omitempty"`
	ConvertedFilePath string     `json:"converted_file_path,omitempty"`
}

// Clone はレコードの独立したコピーを返します。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// Progress は状態から導出される粗い進捗値です。UI表示向けの目安であり、
// 実際の処理量は反映しません。
func (r *Record) Progress() int {
	switch r.Status {
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// CompletionInfo はジョブ完了時に記録する計測値を保持します。
type CompletionInfo struct {
	ConvertedFileSize int64
	ConversionTime    float64
	DownloadURL       string
}
