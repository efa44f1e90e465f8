package persistence

import (
	"context"
	"sync"

	"fortuneteller/pkg/logx"
)

// Writer archives records in the background so request paths never wait on SQLite.
// Submissions are fire-and-forget: a full queue drops the record with a warning.
type Writer struct {
	archive *Archive
	logger  *logx.Logger
	queue   chan *Record
	done    chan struct{}
	once    sync.Once
}

// NewWriter creates a writer with the given queue size. Call Run to start draining.
func NewWriter(archive *Archive, size int) *Writer {
	if size <= 0 {
		size = 64
	}
	return &Writer{
		archive: archive,
		logger:  logx.NewLogger("persistence-writer"),
		queue:   make(chan *Record, size),
		done:    make(chan struct{}),
	}
}

// Submit enqueues rec. It reports false when the queue is full or closed.
func (w *Writer) Submit(rec *Record) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case w.queue <- rec:
		return true
	default:
		w.logger.Warn("archive queue full, dropping %s %s", rec.Kind, rec.ID)
		return false
	}
}

// Run writes queued records until the queue is closed. Records still queued when ctx is
// canceled are written with a background context so Close never loses accepted work.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for rec := range w.queue {
		writeCtx := ctx
		if ctx.Err() != nil {
			writeCtx = context.Background()
		}
		if err := w.archive.Insert(writeCtx, rec); err != nil {
			w.logger.Error("failed to archive %s: %v", rec.ID, err)
		}
	}
}

// Close stops accepting records and waits for Run to drain the queue.
func (w *Writer) Close() {
	w.once.Do(func() { close(w.queue) })
	<-w.done
}
