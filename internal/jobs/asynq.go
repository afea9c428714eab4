package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

const taskTypeConvert = "convert:run"

type taskPayload struct {
	JobID string `json:"job_id"`
}

// asynqDispatcher は Asynq のキューを経由してジョブを実行するディスパッチャーです。
// QUEUE_REDIS_URL が設定されている場合に選択され、クライアントとサーバーを
// 同一プロセス内で動かします。再試行はしません（MaxRetry 0）。
type asynqDispatcher struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *log.Logger
}

func newAsynqDispatcher(redisURL string, concurrency int, run func(ctx context.Context, jobID string), logger *log.Logger) (*asynqDispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"convert": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeConvert, func(ctx context.Context, task *asynq.Task) error {
		var payload taskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
		if payload.JobID == "" {
			return fmt.Errorf("missing job_id in payload")
		}
		run(ctx, payload.JobID)
		return nil
	})

	return &asynqDispatcher{
		client: client,
		server: server,
		mux:    mux,
		logger: logger,
	}, nil
}

func (d *asynqDispatcher) Start() {
	go func() {
		if err := d.server.Run(d.mux); err != nil && err != asynq.ErrServerClosed {
			if d.logger != nil {
				d.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

func (d *asynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(taskPayload{JobID: jobID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeConvert, body, asynq.Queue("convert"))
	_, err = d.client.EnqueueContext(ctx, task, asynq.MaxRetry(0))
	return err
}

func (d *asynqDispatcher) Shutdown(ctx context.Context) error {
	d.server.Shutdown()
	return d.client.Close()
}
