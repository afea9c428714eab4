package jobs

import (
	"context"
	"errors"
	"sync"
)

const poolQueueSize = 256

// poolDispatcher はプロセス内ワーカーゴルーチンでジョブを実行する
// デフォルトのディスパッチャーです。外部依存を持ちません。
type poolDispatcher struct {
	queue     chan string
	workers   int
	run       func(ctx context.Context, jobID string)
	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newPoolDispatcher(workers int, run func(ctx context.Context, jobID string)) *poolDispatcher {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &poolDispatcher{
		queue:   make(chan string, poolQueueSize),
		workers: workers,
		run:     run,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

func (d *poolDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for jobID := range d.queue {
				d.run(d.baseCtx, jobID)
			}
		}()
	}
}

// Dispatch はジョブIDをキューへ投入します。キューが満杯の場合は
// ブロックせずエラーを返し、呼び出し側が同期的に失敗を返せるようにします。
func (d *poolDispatcher) Dispatch(ctx context.Context, jobID string) error {
	select {
	case d.queue <- jobID:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

func (d *poolDispatcher) Shutdown(ctx context.Context) error {
	d.closeOnce.Do(func() {
		close(d.queue)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
