package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/yourusername/doc-forge/internal/config"
	"github.com/yourusername/doc-forge/internal/convert"
)

// Runner は変換処理の実行を提供します。convert.Service が実装します。
type Runner interface {
	Run(ctx context.Context, from, to, inputPath, outputPath string) error
}

type dispatcher interface {
	Start()
	Dispatch(ctx context.Context, jobID string) error
	Shutdown(ctx context.Context) error
}

// Manager はジョブの投入・実行・状態遷移・後始末を担います。
// 1件の投入につき変換の実行はちょうど1回で、実行路で発生した
// エラーやパニックはすべて FAILED 状態へ畳み込まれます。
type Manager struct {
	cfg        *config.Config
	registry   Registry
	runner     Runner
	dispatcher dispatcher
	logger     *log.Logger
	now        func() time.Time
}

// NewManager は Manager を初期化します。QUEUE_REDIS_URL が設定されている場合は
// Asynq ベースのディスパッチャーを、未設定の場合はプロセス内ワーカープールを
// 使用します。
func NewManager(cfg *config.Config, registry Registry, runner Runner, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}

	manager := &Manager{
		cfg:      cfg,
		registry: registry,
		runner:   runner,
		logger:   logger,
		now:      time.Now,
	}

	if cfg.QueueRedisURL != "" {
		d, err := newAsynqDispatcher(cfg.QueueRedisURL, cfg.WorkerCount, manager.process, logger)
		if err != nil {
			return nil, err
		}
		manager.dispatcher = d
	} else {
		manager.dispatcher = newPoolDispatcher(cfg.WorkerCount, manager.process)
	}

	return manager, nil
}

// StartWorkers はバックグラウンドの実行路を起動します。
func (m *Manager) StartWorkers() {
	m.dispatcher.Start()
}

// Shutdown はディスパッチャーを停止します。
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.dispatcher.Shutdown(ctx)
}

// Schedule は受理済みの Submission から PENDING のレコードを作成して保存し、
// 非同期実行をちょうど1回予約します。投入に失敗した場合はレコードを残さず
// エラーを返します。
func (m *Manager) Schedule(ctx context.Context, sub *convert.Submission) (*Record, error) {
	if sub == nil {
		return nil, errors.New("submission is nil")
	}
	if sub.JobID == "" {
		return nil, errors.New("submission job id is required")
	}

	record := &Record{
		ID:                sub.JobID,
		OriginalFilename:  sub.OriginalFilename,
		ConvertedFilename: sub.ConvertedFilename,
		FromFormat:        sub.FromFormat,
		ToFormat:          sub.ToFormat,
		Status:            StatusPending,
		FileSize:          sub.FileSize,
		CreatedAt:         m.now().UTC(),
		FilePath:          sub.InputPath,
		ConvertedFilePath: sub.OutputPath,
	}
	if err := m.registry.Put(ctx, record); err != nil {
		return nil, err
	}

	if err := m.dispatcher.Dispatch(ctx, record.ID); err != nil {
		_ = m.registry.Delete(ctx, record.ID)
		return nil, fmt.Errorf("ジョブの投入に失敗しました: %w", err)
	}

	return record, nil
}

// GetRecord はジョブ情報を取得します。未知IDの場合は (nil, nil) を返します。
func (m *Manager) GetRecord(ctx context.Context, id string) (*Record, error) {
	return m.registry.Get(ctx, id)
}

// Cleanup は入力/出力ファイルを削除し、レコードをレジストリから除去します。
// ファイル削除の失敗は無視し、レジストリの除去は必ず試みます。
func (m *Manager) Cleanup(ctx context.Context, id string) error {
	record, err := m.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}

	removeFile(record.FilePath)
	removeFile(record.ConvertedFilePath)

	return m.registry.Delete(ctx, id)
}

// process は1ジョブの非同期実行路です。PROCESSING への遷移を先に永続化して
// から変換を呼び出し、結果を終端状態として書き戻します。
func (m *Manager) process(ctx context.Context, jobID string) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logf("job %s panicked: %v", jobID, rec)
			_ = m.registry.MarkFailed(ctx, jobID, fmt.Sprintf("変換中に内部エラーが発生しました: %v", rec))
		}
	}()

	record, err := m.registry.Get(ctx, jobID)
	if err != nil {
		m.logf("job %s: failed to load record: %v", jobID, err)
		return
	}
	if record == nil {
		// 実行前にクリーンアップされたジョブは黙って捨てる
		return
	}

	if err := m.registry.MarkProcessing(ctx, jobID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return
		}
		m.logf("job %s: failed to mark processing: %v", jobID, err)
		return
	}

	start := m.now()
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.ConvertTimeout())
	defer cancel()

	convErr := m.runner.Run(runCtx, record.FromFormat, record.ToFormat, record.FilePath, record.ConvertedFilePath)
	if convErr == nil {
		if info, statErr := os.Stat(record.ConvertedFilePath); statErr == nil {
			elapsed := math.Round(m.now().Sub(start).Seconds()*100) / 100
			if err := m.registry.MarkCompleted(ctx, jobID, CompletionInfo{
				ConvertedFileSize: info.Size(),
				ConversionTime:    elapsed,
				DownloadURL:       fmt.Sprintf("/api/convert/download/%s", jobID),
			}); err != nil {
				m.logf("job %s: failed to mark completed: %v", jobID, err)
			}
			m.logf("job %s: completed in %.2fs (%d bytes)", jobID, elapsed, info.Size())
			return
		}
		convErr = errors.New("変換は成功と報告されましたが、出力ファイルが見つかりません。")
	}

	message := failureMessage(convErr, m.cfg.ConvertTimeout())
	if err := m.registry.MarkFailed(ctx, jobID, message); err != nil {
		m.logf("job %s: failed to mark failed: %v", jobID, err)
	}
	m.logf("job %s: failed: %s", jobID, message)
}

func failureMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("変換が制限時間(%s)を超過しました。", timeout)
	}
	var apiErr *convert.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return fmt.Sprintf("変換に失敗しました: %v", err)
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func removeFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
