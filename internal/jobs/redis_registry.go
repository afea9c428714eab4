package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "job:"

// RedisRegistry はジョブレコードを Redis に保存する Registry 実装です。
// 複数プロセスでの共有やプロセス再起動をまたいだ参照が必要な構成向けで、
// レコードは常にJSON全体の置き換えとして書き込まれます。
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisRegistry は RedisRegistry を作成します。
func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Get はレコードを取得します。未知IDの場合は (nil, nil) を返します。
func (r *RedisRegistry) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	data, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Put はレコードを保存します。
func (r *RedisRegistry) Put(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record with id is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, jobKey(record.ID), payload, r.ttl).Err()
}

// Delete はレコードを削除します。
func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	deleted, err := r.rdb.Del(ctx, jobKey(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing は処理中への遷移を記録します。
func (r *RedisRegistry) MarkProcessing(ctx context.Context, id string) error {
	return r.updatePartial(ctx, id, markProcessing)
}

// MarkCompleted は完了への遷移と計測値を記録します。
func (r *RedisRegistry) MarkCompleted(ctx context.Context, id string, info CompletionInfo) error {
	return r.updatePartial(ctx, id, func(record *Record) {
		markCompleted(record, info, r.now())
	})
}

// MarkFailed は失敗への遷移とエラーメッセージを記録します。
func (r *RedisRegistry) MarkFailed(ctx context.Context, id string, message string) error {
	return r.updatePartial(ctx, id, func(record *Record) {
		markFailed(record, message, r.now())
	})
}

func (r *RedisRegistry) updatePartial(ctx context.Context, id string, mutate func(*Record)) error {
	key := jobKey(id)
	for {
		tx := r.rdb.TxPipeline()
		data, err := r.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		tx.Set(ctx, key, payload, r.ttl)
		_, err = tx.Exec(ctx)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
