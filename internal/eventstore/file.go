package eventstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// FileStore persists the event log as newline-delimited JSON, one event
// per line, fsynced on every append so a crash never loses acknowledged
// events. Safe for concurrent use.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	log    []events.Event
	closed bool
}

// OpenFileStore opens or creates an NDJSON event log at path, loading
// any existing events.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	existing, err := loadEvents(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &FileStore{path: path, file: file, log: existing}, nil
}

func loadEvents(path string) ([]events.Event, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	var log []events.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		event, err := events.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("corrupt event log %s line %d: %w", path, line, err)
		}
		log = append(log, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return log, nil
}

// Append implements Store. The event is durable when Append returns.
func (s *FileStore) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}

	s.log = append(s.log, event)
	return nil
}

// All implements Store.
func (s *FileStore) All(context.Context) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]events.Event, len(s.log))
	copy(out, s.log)
	return out, nil
}

// Len implements Store.
func (s *FileStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.log), nil
}

// Path returns the log file location.
func (s *FileStore) Path() string { return s.path }

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
