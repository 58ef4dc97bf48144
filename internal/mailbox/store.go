package mailbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// mailboxDir is the directory name within the state directory that holds mailboxes.
	mailboxDir = "mailbox"

	// indexFile is the append-only JSONL file within each mailbox directory.
	indexFile = "index.jsonl"
)

// Backend stores and retrieves messages. Implementations need not order
// messages or drop expired ones; Mailbox does both.
type Backend interface {
	// Put persists a fully populated message.
	Put(ctx context.Context, msg Message) error

	// Fetch returns every stored message addressed to recipient, excluding broadcasts.
	Fetch(ctx context.Context, recipient string) ([]Message, error)
}

// Store provides file-based mailbox storage.
// Messages are persisted as JSONL (one JSON object per line) in an append-only log
// per recipient.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ Backend = (*Store)(nil)

// NewStore creates a Store rooted at the given state directory.
// The directory structure is created lazily on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Put appends a message to the recipient's index. Writes are serialized
// via a mutex and use O_APPEND.
func (s *Store) Put(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mailbox: message To field is required")
	}

	dir := s.dirForRecipient(msg.To)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mailbox: create directory: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mailbox: marshal message: %w", err)
	}
	data = append(data, '\n')

	return s.atomicAppend(filepath.Join(dir, indexFile), data)
}

// Fetch returns all messages stored for a recipient.
func (s *Store) Fetch(_ context.Context, recipient string) ([]Message, error) {
	if recipient == "" {
		return nil, fmt.Errorf("mailbox: recipient is required")
	}
	return s.readIndex(s.dirForRecipient(recipient))
}

func (s *Store) dirForRecipient(recipient string) string {
	return filepath.Join(s.dir, mailboxDir, recipient)
}

// readIndex reads all messages from an index.jsonl file.
// Returns nil (not error) if the file does not exist.
func (s *Store) readIndex(dir string) ([]Message, error) {
	f, err := os.Open(filepath.Join(dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mailbox: open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	var messages []Message
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// A torn write from a crashed sender only loses that line.
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mailbox: scan index: %w", err)
	}
	return messages, nil
}

// atomicAppend appends data to a file under a mutex.
// Each JSONL line is small enough that O_APPEND keeps concurrent writers from
// other processes from interleaving on POSIX systems.
func (s *Store) atomicAppend(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mailbox: open index for append: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("mailbox: append to index: %w", err)
	}
	return f.Close()
}

// idCounter provides per-process uniqueness for message IDs.
var idCounter atomic.Uint64

// generateID produces a unique message ID using timestamp, PID, and atomic counter.
func generateID(now time.Time) string {
	return fmt.Sprintf("msg-%d-%d-%d", now.UnixNano(), os.Getpid(), idCounter.Add(1))
}
