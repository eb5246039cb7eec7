package tui

import (
	"context"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/barcode"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/session"
)

// Messages the host sends into the program.
type (
	noticeMsg struct {
		level   session.NoticeLevel
		message string
	}
	flashMsg       struct{}
	historyBackMsg struct{}
	confirmMsg     struct {
		title string
		help  string
		reply chan bool
	}
)

// Vibrator is the haptic channel to the operator's scanner.
type Vibrator interface {
	Vibrate(d time.Duration)
}

// Host connects a session controller to the terminal program. Feedback is
// delivered as program messages; dialog actions wait for the operator.
type Host struct {
	transport session.Transport
	bell      io.Writer
	vibrator  Vibrator

	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewHost creates a host running backend actions over transport. bell
// receives the terminal bell for sounds and may be nil. vibrator may be nil.
func NewHost(transport session.Transport, bell io.Writer, vibrator Vibrator) *Host {
	return &Host{transport: transport, bell: bell, vibrator: vibrator}
}

// Attach directs host messages to send, normally tea.Program.Send.
func (h *Host) Attach(send func(tea.Msg)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send = send
}

func (h *Host) post(msg tea.Msg) bool {
	h.mu.RLock()
	send := h.send
	h.mu.RUnlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

// Notify implements session.Host.
func (h *Host) Notify(level session.NoticeLevel, message string) {
	if !h.post(noticeMsg{level: level, message: message}) {
		logging.Info("Notice", zap.String("level", level.String()), zap.String("message", message))
	}
}

// PlaySound rings the terminal bell, twice for errors.
func (h *Host) PlaySound(name string) {
	if h.bell == nil {
		return
	}
	bell := "\a"
	if name == session.SoundError {
		bell = "\a\a"
	}
	_, _ = io.WriteString(h.bell, bell)
}

// Flash implements session.Host.
func (h *Host) Flash() {
	h.post(flashMsg{})
}

// HistoryBack leaves the session by ending the program.
func (h *Host) HistoryBack() {
	h.post(historyBackMsg{})
}

// Vibrate implements session.Vibrator through the scanner bridge.
func (h *Host) Vibrate(d time.Duration) {
	if h.vibrator != nil {
		h.vibrator.Vibrate(d)
	}
}

// RunAction asks the operator to confirm dialog actions, then runs the
// action on the backend. A declined dialog reports a non-cancelled close.
func (h *Host) RunAction(ctx context.Context, action session.Action) (session.ActionResult, error) {
	if barcode.NeedsConfirmation(action) {
		title, help := barcode.ActionPrompt(action)
		reply := make(chan bool, 1)
		if !h.post(confirmMsg{title: title, help: help, reply: reply}) {
			return session.ActionResult{}, nil
		}
		select {
		case ok := <-reply:
			if !ok {
				logging.Debug("Action declined", zap.String("action", action.Name()))
				return session.ActionResult{}, nil
			}
		case <-ctx.Done():
			return session.ActionResult{}, ctx.Err()
		}
	}
	return barcode.RunAction(ctx, h.transport, action)
}

// mailbox holds the newest snapshot not yet taken by the program. Older
// snapshots are replaced, never queued.
type mailbox struct {
	mu   sync.Mutex
	last uint64
	ch   chan session.Snapshot
	done chan struct{}
	once sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan session.Snapshot, 1), done: make(chan struct{})}
}

// close releases a pending wait.
func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

func (m *mailbox) put(snap session.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Seq <= m.last {
		return
	}
	m.last = snap.Seq
	select {
	case <-m.ch:
	default:
	}
	m.ch <- snap
}

type snapshotMsg struct {
	snap session.Snapshot
}

// wait returns a command delivering the next snapshot.
func (m *mailbox) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-m.ch:
			return snapshotMsg{snap: snap}
		case <-m.done:
			return nil
		}
	}
}
