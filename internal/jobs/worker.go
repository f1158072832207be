// Package jobs runs the periodic maintenance passes of discoverd.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// JobProcessor runs one pass of a periodic job
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor once on start and then on every tick.
type Worker struct {
	name      string
	processor JobProcessor
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

func NewWorker(name string, processor JobProcessor, interval time.Duration) *Worker {
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start blocks until ctx ends or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	log.Printf("%s: started, interval %v", w.name, w.interval)
	w.pass(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopped, context cancelled", w.name)
			return
		case <-w.stop:
			log.Printf("%s: stopped", w.name)
			return
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("%s: pass failed: %v", w.name, err)
	}
}

// Stop signals the loop and waits for it to exit. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
