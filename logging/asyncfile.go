package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// ErrClosed is returned when writing to a closed AsyncFile.
var ErrClosed = errors.New("async file is closed")

// AsyncFile writes to a file from a background goroutine so observers never
// block the runner on disk.
type AsyncFile struct {
	file    *os.File
	log     log.Logger
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates path, and its directory, for appending.
func NewAsyncFile(path string, lg log.Logger) (*AsyncFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		log:   lg,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues a copy of data.
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()
	if af.stopped {
		return ErrClosed
	}
	af.queue <- append([]byte(nil), data...)
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.log.Warn("Error writing log file", "file", af.file.Name(), "err", err)
		}
	}
}

// Close flushes every queued write and closes the file.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}
