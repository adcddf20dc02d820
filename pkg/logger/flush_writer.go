package logger

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"time"
)

// FlushWriter buffers log writes and flushes them when the flush interval
// elapses, when the buffer fills, or immediately on error/fatal entries.
type FlushWriter struct {
	bufWriter     *bufio.Writer
	mu            sync.Mutex
	flushInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewFlushWriter creates a FlushWriter wrapping w
func NewFlushWriter(w io.Writer, flushInterval time.Duration) *FlushWriter {
	fw := &FlushWriter{
		bufWriter:     bufio.NewWriterSize(w, 256*1024),
		flushInterval: flushInterval,
		stopChan:      make(chan struct{}),
	}

	fw.wg.Add(1)
	go fw.runFlusher()

	return fw
}

// Write implements io.Writer
func (fw *FlushWriter) Write(p []byte) (n int, err error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	isError := bytes.Contains(p, []byte(`"level":"error"`)) ||
		bytes.Contains(p, []byte(`"level":"fatal"`))

	n, err = fw.bufWriter.Write(p)

	if isError {
		_ = fw.bufWriter.Flush()
	}

	return n, err
}

// Sync flushes the buffer
func (fw *FlushWriter) Sync() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.bufWriter.Flush()
}

// Close flushes and stops the background flusher
func (fw *FlushWriter) Close() error {
	close(fw.stopChan)
	fw.wg.Wait()
	return fw.Sync()
}

func (fw *FlushWriter) runFlusher() {
	defer fw.wg.Done()
	ticker := time.NewTicker(fw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = fw.Sync()
		case <-fw.stopChan:
			return
		}
	}
}
