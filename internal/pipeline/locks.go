package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// deviceLocks 为每个播放设备提供独立的互斥，首次使用时创建。
// 基于 semaphore 实现，等待锁时可被 ctx 取消。
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*semaphore.Weighted)}
}

func (d *deviceLocks) get(device string) *semaphore.Weighted {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.locks[device]
	if !ok {
		sem = semaphore.NewWeighted(1)
		d.locks[device] = sem
	}
	return sem
}

// acquire 阻塞直到获得 device 的独占权，返回释放函数。
func (d *deviceLocks) acquire(ctx context.Context, device string) (func(), error) {
	sem := d.get(device)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
