package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound は未知のジョブIDに対する操作で返されます。
var ErrNotFound = errors.New("job not found")

// Registry はジョブレコードの並行安全なストアです。
// Get は未知IDに対して (nil, nil) を返し、更新系は ErrNotFound を返します。
// すべての操作は外部からアトミックに見え、読み手が更新途中のレコードを
// 観測することはありません。
type Registry interface {
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, record *Record) error
	Delete(ctx context.Context, id string) error
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, info CompletionInfo) error
	MarkFailed(ctx context.Context, id string, message string) error
}

// MemoryRegistry はミューテックスで保護されたインメモリの Registry 実装です。
// 内部にはレコードの専有コピーのみを保持し、Get もコピーを返すため、
// 呼び出し側の変更がストアへ漏れることはありません。
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryRegistry は空の MemoryRegistry を作成します。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Get はレコードのコピーを返します。未知IDの場合は (nil, nil) を返します。
func (r *MemoryRegistry) Get(ctx context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

// Put はレコードを保存します（同一IDは上書き）。
func (r *MemoryRegistry) Put(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return errors.New("record with id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record.Clone()
	return nil
}

// Delete はレコードを削除します。
func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

// MarkProcessing は処理中への遷移を記録します。
func (r *MemoryRegistry) MarkProcessing(ctx context.Context, id string) error {
	return r.update(id, markProcessing)
}

// MarkCompleted は完了への遷移と計測値を記録します。
func (r *MemoryRegistry) MarkCompleted(ctx context.Context, id string, info CompletionInfo) error {
	return r.update(id, func(record *Record) {
		markCompleted(record, info, r.now())
	})
}

// MarkFailed は失敗への遷移とエラーメッセージを記録します。
func (r *MemoryRegistry) MarkFailed(ctx context.Context, id string, message string) error {
	return r.update(id, func(record *Record) {
		markFailed(record, message, r.now())
	})
}

func (r *MemoryRegistry) update(id string, mutate func(*Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	mutate(record)
	return nil
}

// 遷移ロジックは Registry 実装間で共有する。終端状態からの巻き戻しは
// 黙って無視し、状態の単調性を保証する。

func markProcessing(record *Record) {
	if record.Status != StatusPending {
		return
	}
	record.Status = StatusProcessing
}

func markCompleted(record *Record, info CompletionInfo, now time.Time) {
	if record.Status.Terminal() {
		return
	}
	completedAt := now.UTC()
	record.Status = StatusCompleted
	record.ConvertedFileSize = info.ConvertedFileSize
	record.ConversionTime = info.ConversionTime
	record.DownloadURL = info.DownloadURL
	record.ErrorMessage = ""
	record.CompletedAt = &completedAt
}

func markFailed(record *Record, message string, now time.Time) {
	if record.Status.Terminal() {
		return
	}
	completedAt := now.UTC()
	record.Status = StatusFailed
	record.ErrorMessage = message
	record.CompletedAt = &completedAt
}
