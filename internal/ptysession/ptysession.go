// Package ptysession spawns shells inside pseudo-terminals, fans out
// their output to async subscribers, accepts stdin writes, and truncates
// captured output to a byte budget. It generalizes internal/egg/server.go
// — which spawns one interactive agent per OS process and serves it over
// gRPC — into an in-process manager of many concurrent PTY sessions
// keyed by a per-process session id, using a bounded lossy broadcast
// channel instead of egg's single-process cursor-replay buffer for
// ordinary subscribers.
package ptysession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
)

var (
	ErrSpawnFailed    = errors.New("ptysession: spawn failed")
	ErrUnknownSession = errors.New("ptysession: unknown session")
	ErrWriteFailed    = errors.New("ptysession: write failed")
)

const (
	broadcastCapacity = 256
	stdinCapacity      = 128
	readChunkSize      = 4096
)

// ExecParams are the exec_command tool parameters.
type ExecParams struct {
	Cmd             string
	YieldTimeMs     uint64 // default 10000
	MaxOutputTokens uint64 // default 10000
	Shell           string // default "/bin/bash"
	Login           bool   // true runs the shell with -lc; false (the zero value) runs it with -c
}

// WriteStdinParams are the write_stdin tool parameters.
type WriteStdinParams struct {
	SessionID       uint64
	Chars           string
	YieldTimeMs     uint64 // default 250
	MaxOutputTokens uint64 // default 10000
}

// Output is the structured result before text rendering.
type Output struct {
	WallTime            time.Duration
	Ongoing             bool
	ExitCode            int
	SessionID           uint64
	Text                string
	Truncated           bool
	OriginalTokenCount  int
}

// Render produces the human-readable text block shown to the model.
func (o Output) Render() string {
	termination := fmt.Sprintf("Process exited with code %d", o.ExitCode)
	if o.Ongoing {
		termination = fmt.Sprintf("Process running with session ID %d", o.SessionID)
	}
	out := fmt.Sprintf("Wall time: %.3f seconds\n%s\n", o.WallTime.Seconds(), termination)
	if o.Truncated {
		out += fmt.Sprintf("\nWarning: truncated output (original token count: %d)\n", o.OriginalTokenCount)
	}
	out += "Output:\n" + o.Text
	return out
}

type subscriber struct {
	ch chan []byte
}

// session is the internal representation of a live PTY. Tasks hold
// only channel endpoints, never back-pointers, so dropping the
// manager's map entry is enough to let them exit.
type session struct {
	id uint64

	ptmx *os.File
	cmd  *exec.Cmd

	writeCh chan []byte

	mu           sync.Mutex
	subscribers  []*subscriber
	auditWriters []*auditWriter

	exitCh   chan struct{} // closed when the process exits
	exitCode atomic.Int32

	started time.Time
}

// Manager owns all live PtySession entries in a map keyed by session-id.
// Subscribers hold only receiver endpoints; dropping them does not stop
// the shell.
type Manager struct {
	mu       sync.Mutex
	sessions map[uint64]*session
	nextID   atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[uint64]*session)}
}

// ExecCommand spawns p.Cmd in a fresh PTY and collects its output.
func (m *Manager) ExecCommand(ctx context.Context, p ExecParams) (*Output, error) {
	if p.YieldTimeMs == 0 {
		p.YieldTimeMs = 10000
	}
	if p.MaxOutputTokens == 0 {
		p.MaxOutputTokens = 10000
	}
	if p.Shell == "" {
		p.Shell = "/bin/bash"
	}

	id := m.nextID.Add(1)

	flag := "-c"
	if p.Login {
		flag = "-lc"
	}
	cmd := exec.Command(p.Shell, flag, p.Cmd)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	sess := &session{
		id:      id,
		ptmx:    ptmx,
		cmd:     cmd,
		writeCh: make(chan []byte, stdinCapacity),
		exitCh:  make(chan struct{}),
		started: time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	go readerLoop(sess)
	go writerLoop(sess)
	go waiterLoop(sess)

	out, err := m.collect(ctx, sess, p.YieldTimeMs, p.MaxOutputTokens)
	if err != nil {
		return nil, err
	}
	out.SessionID = id
	return out, nil
}

// WriteStdin implements the write_stdin contract.
func (m *Manager) WriteStdin(ctx context.Context, p WriteStdinParams) (*Output, error) {
	if p.YieldTimeMs == 0 {
		p.YieldTimeMs = 250
	}
	if p.MaxOutputTokens == 0 {
		p.MaxOutputTokens = 10000
	}

	m.mu.Lock()
	sess, ok := m.sessions[p.SessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	if p.Chars != "" {
		select {
		case sess.writeCh <- []byte(p.Chars):
		default:
			return nil, fmt.Errorf("%w: stdin channel full", ErrWriteFailed)
		}
	}

	out, err := m.collect(ctx, sess, p.YieldTimeMs, p.MaxOutputTokens)
	if err != nil {
		return nil, err
	}
	out.Ongoing = true
	out.SessionID = p.SessionID
	return out, nil
}

// Kill terminates a session's process and lets its background tasks exit
// on channel/process closure.
func (m *Manager) Kill(sessionID uint64) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	if sess.cmd.Process != nil {
		return sess.cmd.Process.Kill()
	}
	return nil
}

// collect runs the wall-clock-bounded collection loop: biased select on
// the exit signal first, then output recv with a timeout equal to the
// remaining budget.
func (m *Manager) collect(ctx context.Context, sess *session, yieldMs, maxTokens uint64) (*Output, error) {
	sub := &subscriber{ch: make(chan []byte, broadcastCapacity)}
	sess.mu.Lock()
	sess.subscribers = append(sess.subscribers, sub)
	sess.mu.Unlock()
	defer m.unsubscribe(sess, sub)

	start := time.Now()
	deadline := start.Add(time.Duration(yieldMs) * time.Millisecond)

	var buf []byte
	exited := false

collectLoop:
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		select {
		case <-sess.exitCh:
			exited = true
			break collectLoop
		default:
		}

		timer := time.NewTimer(remaining)
		select {
		case <-sess.exitCh:
			timer.Stop()
			exited = true
			break collectLoop
		case chunk, ok := <-sub.ch:
			timer.Stop()
			if !ok {
				break collectLoop
			}
			buf = append(buf, chunk...)
		case <-timer.C:
			break collectLoop
		case <-ctx.Done():
			timer.Stop()
			break collectLoop
		}
	}

	if exited {
		// Grace period: drain any still-buffered chunks, 1ms per attempt.
		graceDeadline := time.Now().Add(25 * time.Millisecond)
		for time.Now().Before(graceDeadline) {
			select {
			case chunk, ok := <-sub.ch:
				if !ok {
					break
				}
				buf = append(buf, chunk...)
			case <-time.After(time.Millisecond):
			}
		}
	}

	text, truncated, origTokens := TruncateMiddle(string(buf), int(maxTokens)*4)

	out := &Output{
		WallTime:           time.Since(start),
		Text:               text,
		Truncated:          truncated,
		OriginalTokenCount: origTokens,
	}
	if exited {
		out.ExitCode = int(sess.exitCode.Load())
	} else {
		out.Ongoing = true
	}
	return out, nil
}

func (m *Manager) unsubscribe(sess *session, sub *subscriber) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for i, s := range sess.subscribers {
		if s == sub {
			sess.subscribers = append(sess.subscribers[:i], sess.subscribers[i+1:]...)
			return
		}
	}
}

func readerLoop(sess *session) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			broadcast(sess, chunk)
		}
		if err != nil {
			return
		}
	}
}

// broadcast fans a chunk out to every subscriber. Slow subscribers are
// load-shed: if their channel is full the chunk is dropped for them
// (lagged rather than blocked) rather than blocking the reader.
func broadcast(sess *session, chunk []byte) {
	sess.mu.Lock()
	subs := append([]*subscriber(nil), sess.subscribers...)
	audits := append([]*auditWriter(nil), sess.auditWriters...)
	sess.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- chunk:
		default:
			// lossy on slow subscriber
		}
	}
	for _, aw := range audits {
		aw.write(chunk) // never-drop: blocks the reader loop if w is slow
	}
}

func writerLoop(sess *session) {
	for data := range sess.writeCh {
		_, _ = sess.ptmx.Write(data)
	}
}

func waiterLoop(sess *session) {
	err := sess.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	sess.exitCode.Store(int32(code))
	close(sess.exitCh)
	_ = sess.ptmx.Close()
}

// io.Writer and io.Reader are used only for doc clarity above; no direct
// dependency on them beyond what pty/os already provide.
var (
	_ io.Writer
	_ io.Reader
)
