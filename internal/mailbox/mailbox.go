// Package mailbox implements the file-based per-agent JSONL inbox agents
// and the lead orchestrator use to exchange shutdown requests, plan
// approvals, status updates, and task assignments.
package mailbox

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ralphctl/ralph/internal/filelock"
	"github.com/ralphctl/ralph/pkg/models"
)

const (
	sendLockTimeout = 5 * time.Second
	pollLockTimeout = 2 * time.Second
	pollInterval    = 200 * time.Millisecond
)

// Mailbox is the inbox for one agent (or "lead") under a team's mailbox
// directory. A Mailbox only ever reads its own inbox file; sending writes
// into a different agent's inbox file using that recipient's lock.
type Mailbox struct {
	dir     string
	agentID string
	cursor  int64
}

// New returns a mailbox for agentID rooted at <base>/teams/<team>/mailbox.
func New(base, team, agentID string) *Mailbox {
	return &Mailbox{
		dir:     filepath.Join(base, "teams", team, "mailbox"),
		agentID: agentID,
	}
}

func (m *Mailbox) inboxPath(agentID string) string {
	return filepath.Join(m.dir, agentID+".jsonl")
}

func (m *Mailbox) lockPath(agentID string) string {
	return filepath.Join(m.dir, agentID+".lock")
}

// Send appends one message to the recipient's inbox under its own lock.
// It fails if the lock cannot be acquired within the send timeout.
func (m *Mailbox) Send(to string, typ models.MessageType, content string, metadata map[string]string) error {
	lock, err := filelock.Acquire(m.lockPath(to), sendLockTimeout)
	if err != nil {
		return fmt.Errorf("mailbox: send to %s: %w", to, err)
	}
	defer lock.Release()

	msg := models.Message{
		ID:        generateID(),
		From:      m.agentID,
		To:        to,
		Type:      typ,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mailbox: marshal message: %w", err)
	}
	if bytes.ContainsRune(line, '\n') {
		return fmt.Errorf("mailbox: encoded message unexpectedly contains a newline")
	}

	path := m.inboxPath(to)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mailbox: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("mailbox: open inbox %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("mailbox: append to inbox %s: %w", path, err)
	}
	return nil
}

// Broadcast sends content as a broadcast message to every id in knownIDs
// except the sender itself. Per-recipient failures are swallowed so one
// stuck mailbox cannot block delivery to the rest of the team.
func (m *Mailbox) Broadcast(content string, knownIDs []string) {
	for _, id := range knownIDs {
		if id == m.agentID {
			continue
		}
		_ = m.Send(id, models.MessageBroadcast, content, nil)
	}
}

// Poll reads unread lines from the mailbox's own inbox and advances its
// cursor to the end. Corrupt lines are skipped. If the mailbox's own lock
// cannot be acquired, Poll returns an empty result rather than an error —
// the caller is expected to poll again later.
func (m *Mailbox) Poll() ([]models.Message, error) {
	lock, err := filelock.TryAcquire(m.lockPath(m.agentID), pollLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("mailbox: poll: %w", err)
	}
	if lock == nil {
		return nil, nil
	}
	defer lock.Release()

	f, err := os.Open(m.inboxPath(m.agentID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mailbox: open inbox: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(m.cursor, 0); err != nil {
		return nil, fmt.Errorf("mailbox: seek inbox: %w", err)
	}

	var msgs []models.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	read := m.cursor
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // corrupt line, skip
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mailbox: scan inbox: %w", err)
	}

	m.cursor = read
	return msgs, nil
}

// WaitForMessages polls every 200ms until at least one message arrives or
// timeout elapses.
func (m *Mailbox) WaitForMessages(timeout time.Duration) ([]models.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		msgs, err := m.Poll()
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(pollInterval)
	}
}

// WaitForMessage polls until the first message of the given type arrives
// or timeout elapses. Other messages observed along the way are discarded.
func (m *Mailbox) WaitForMessage(typ models.MessageType, timeout time.Duration) (*models.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		msgs, err := m.Poll()
		if err != nil {
			return nil, err
		}
		for i := range msgs {
			if msgs[i].Type == typ {
				return &msgs[i], nil
			}
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(pollInterval)
	}
}

// UnreadCount reports how many lines remain past the current cursor
// without advancing it.
func (m *Mailbox) UnreadCount() (int, error) {
	f, err := os.Open(m.inboxPath(m.agentID))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mailbox: open inbox: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(m.cursor, 0); err != nil {
		return 0, fmt.Errorf("mailbox: seek inbox: %w", err)
	}

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}

// KnownAgentIDs lists every agent with an inbox file in the mailbox
// directory, regardless of whether that agent's lifecycle state is still
// active — a stopped agent's inbox file persists until cleanup.
func (m *Mailbox) KnownAgentIDs() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mailbox: list %s: %w", m.dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".jsonl") {
			ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
		}
	}
	return ids, nil
}

// ClearInbox truncates the mailbox's own inbox file and resets its cursor.
// Used on teardown; messages are otherwise append-only.
func (m *Mailbox) ClearInbox() error {
	lock, err := filelock.Acquire(m.lockPath(m.agentID), sendLockTimeout)
	if err != nil {
		return fmt.Errorf("mailbox: clear_inbox: %w", err)
	}
	defer lock.Release()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("mailbox: create dir: %w", err)
	}
	if err := os.WriteFile(m.inboxPath(m.agentID), nil, 0644); err != nil {
		return fmt.Errorf("mailbox: truncate inbox: %w", err)
	}
	m.cursor = 0
	return nil
}

// generateID returns a 12-character hex message ID.
func generateID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// time-derived id rather than panicking.
		return fmt.Sprintf("%012x", time.Now().UnixNano())[:12]
	}
	return hex.EncodeToString(b[:])
}
