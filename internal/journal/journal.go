// Package journal persists every model-visible conversation item to a
// resumable line-delimited JSONL file keyed by session id. The on-disk
// layout and the "dedicated writer owns the file" ownership model mirror
// internal/history/store.go generalized from one-file-per-session JSON
// blobs to an append-only JSONL log with a bounded writer channel, in
// the spirit of internal/egg's replay buffer's single writer goroutine.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeturn/core/internal/session"
)

const writerQueueCapacity = 256

// header is line 1 of every rollout file.
type header struct {
	ID           string             `json:"id"`
	Timestamp    string             `json:"timestamp"`
	Instructions string             `json:"instructions,omitempty"`
	Git          *session.GitContext `json:"git,omitempty"`
}

// stateRecord is the other non-item line shape.
type stateRecord struct {
	RecordType string          `json:"record_type"`
	Snapshot   json.RawMessage `json:"-"`
}

type command struct {
	kind     cmdKind
	items    []session.Item
	snapshot any
	ack      chan struct{}
}

type cmdKind int

const (
	cmdAppendItems cmdKind = iota
	cmdUpdateState
	cmdShutdown
)

// Handle is a bounded send endpoint to the dedicated writer task that owns
// the file. Producers never touch the *os.File directly.
type Handle struct {
	path   string
	queue  chan command
	logger *slog.Logger
}

// Open creates a new rollout file under root and starts its writer task.
// root is typically "<home>/sessions".
func Open(root string, sess *session.Session, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := rolloutPath(root, sess)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	hdr := header{
		ID:           sess.ID,
		Timestamp:    sess.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		Instructions: sess.Instructions,
		Git:          sess.Git,
	}
	if err := writeLine(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: write header: %w", err)
	}

	h := &Handle{path: path, queue: make(chan command, writerQueueCapacity), logger: logger}
	go runWriter(f, h.queue, logger)
	return h, nil
}

func rolloutPath(root string, sess *session.Session) string {
	y := sess.Timestamp.Format("2006")
	m := sess.Timestamp.Format("01")
	d := sess.Timestamp.Format("02")
	ts := strings.ReplaceAll(sess.Timestamp.Format("2006-01-02T15-04-05"), ":", "-")
	name := fmt.Sprintf("rollout-%s-%s.jsonl", ts, sess.ID)
	return filepath.Join(root, y, m, d, name)
}

func runWriter(f *os.File, queue <-chan command, logger *slog.Logger) {
	defer f.Close()
	for cmd := range queue {
		switch cmd.kind {
		case cmdAppendItems:
			for _, item := range cmd.items {
				if !session.IsKnownKind(item.Kind) {
					continue // unknown/transient variants are discarded before send
				}
				if err := writeLine(f, item); err != nil {
					logger.Error("journal: fatal write error, writer exiting", "error", err)
					return
				}
			}
		case cmdUpdateState:
			rec := struct {
				RecordType string `json:"record_type"`
				State      any    `json:"state"`
			}{RecordType: "state", State: cmd.snapshot}
			if err := writeLine(f, rec); err != nil {
				logger.Error("journal: fatal write error, writer exiting", "error", err)
				return
			}
		case cmdShutdown:
			close(cmd.ack)
			return
		}
	}
}

func writeLine(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// Append queues items for durable persistence. Suspends only if the
// queue is full.
func (h *Handle) Append(items []session.Item) {
	h.queue <- command{kind: cmdAppendItems, items: items}
}

// UpdateState records a `{record_type: "state", ...}` line.
func (h *Handle) UpdateState(snapshot any) {
	h.queue <- command{kind: cmdUpdateState, snapshot: snapshot}
}

// Shutdown drains the queue before returning, then stops the writer.
func (h *Handle) Shutdown() {
	ack := make(chan struct{})
	h.queue <- command{kind: cmdShutdown, ack: ack}
	<-ack
	close(h.queue)
}

// Resumed is what Resume/Fork hand back to the caller.
type Resumed struct {
	Handle  *Handle
	Session *session.Session
	Items   []session.Item
	State   json.RawMessage
}

// Resume loads a rollout file, replays its items, and reopens it in
// append mode with a fresh writer task.
func Resume(path string, logger *slog.Logger) (*Resumed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open for resume: %w", err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var hdr header
	var items []session.Item
	var state json.RawMessage

	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			if err := json.Unmarshal(line, &hdr); err != nil {
				f.Close()
				return nil, fmt.Errorf("journal: parse header: %w", err)
			}
			continue
		}

		var probe struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(line, &probe); err == nil && probe.RecordType == "state" {
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(line, &raw); err == nil {
				state = raw["state"]
			}
			continue
		}

		var item session.Item
		if err := json.Unmarshal(line, &item); err != nil {
			logger.Warn("journal: skipping malformed line on resume", "error", err)
			continue
		}
		if !session.IsKnownKind(item.Kind) {
			continue // unknown variants are skipped, not rejected
		}
		items = append(items, item)
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}

	ts, _ := time.Parse("2006-01-02T15:04:05.000Z", hdr.Timestamp)
	sess := &session.Session{
		ID:           hdr.ID,
		Timestamp:    ts,
		Instructions: hdr.Instructions,
		Git:          hdr.Git,
	}

	af, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: reopen for append: %w", err)
	}
	h := &Handle{path: path, queue: make(chan command, writerQueueCapacity), logger: logger}
	go runWriter(af, h.queue, logger)

	return &Resumed{Handle: h, Session: sess, Items: items, State: state}, nil
}

// Fork resumes path, drops the last dropLastN user messages and everything
// after them, and returns the remaining items with a fresh Session (new id,
// same instructions and git context). It opens no rollout file for the
// forked history: the returned Handle and State are nil.
func Fork(path string, dropLastN int, logger *slog.Logger) (*Resumed, error) {
	resumed, err := Resume(path, logger)
	if err != nil {
		return nil, err
	}
	resumed.Handle.Shutdown()

	// Drop the last dropLastN user messages and everything after them.
	cut := len(resumed.Items)
	dropped := 0
	for i := len(resumed.Items) - 1; i >= 0; i-- {
		if resumed.Items[i].Kind == session.KindUserMessage {
			dropped++
			cut = i
			if dropped == dropLastN {
				break
			}
		}
	}
	if dropLastN > 0 {
		resumed.Items = resumed.Items[:cut]
	}

	newSession := session.New(resumed.Session.Instructions, "")
	newSession.Git = resumed.Session.Git
	return &Resumed{Session: newSession, Items: resumed.Items}, nil
}

// FindLatest returns the most recently modified rollout file under root,
// or "" if none exist.
func FindLatest(root string) (string, error) {
	var latest string
	var latestMod time.Time
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".jsonl") {
			return nil
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return latest, nil
}
