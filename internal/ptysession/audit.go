package ptysession

import (
	"io"
	"sync"
)

// auditWriter is a never-drop subscriber: broadcast blocks on it rather
// than shedding load, trading backpressure for completeness. It
// generalizes internal/egg's replayBuffer — built around a
// cursor-indexed in-memory ring buffer multiple readers replay from — to
// the simpler case this package needs: one durable sink per session,
// written synchronously as output arrives.
type auditWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (a *auditWriter) write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.w.Write(p)
}

// Audit registers w as a never-drop sink for sessionID's PTY output.
// Unlike ordinary collection subscribers, an audit writer is never
// unregistered by a timed collection window — it stays attached for the
// session's lifetime, so callers should pass something cheap to block on
// (a buffered file, not a slow network socket).
func (m *Manager) Audit(sessionID uint64, w io.Writer) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	aw := &auditWriter{w: w}
	sess.mu.Lock()
	sess.auditWriters = append(sess.auditWriters, aw)
	sess.mu.Unlock()
	return nil
}
