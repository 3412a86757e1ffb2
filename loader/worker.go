package loader

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Start launches the worker that processes queued loads
func (l *Loader) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.startWorker()
}

// Shutdown stops the worker and fails every load still queued
func (l *Loader) Shutdown() {
	l.mu.RLock()
	cancel := l.cancel
	l.mu.RUnlock()
	if cancel == nil {
		return
	}

	// Cancel first so a Load blocked on a full queue lets go of the lock
	cancel()

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	l.wg.Wait()

	for {
		select {
		case j := <-l.jobs:
			j.complete(Result{Index: j.index, Err: ErrNotRunning})
		default:
			log.Info("Feed loader stopped")
			return
		}
	}
}

func (l *Loader) startWorker() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case j := <-l.jobs:
			l.process(j)
		}
	}
}

func (l *Loader) process(j *job) {
	if l.ctx.Err() != nil {
		j.complete(Result{Index: j.index, Err: ErrNotRunning})
		return
	}
	if err := j.ctx.Err(); err != nil {
		j.complete(Result{Index: j.index, Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(j.ctx, l.config.Timeout)
	defer cancel()

	// Abort the load when the loader shuts down
	stop := context.AfterFunc(l.ctx, cancel)
	defer stop()

	res := l.load(ctx, j.index)
	l.notify(res)
	j.complete(res)
}
