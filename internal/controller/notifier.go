package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoClipboard is returned by notifiers that cannot copy text
var ErrNoClipboard = errors.New("clipboard unavailable")

// Notifier is the seam to whatever shows the panel to the user
type Notifier interface {
	Message(ctx context.Context, text string)
	Confirm(ctx context.Context, question string) bool
	Prompt(ctx context.Context, question, value string) (string, bool)
	Copy(ctx context.Context, text string) error
	Render(ctx context.Context, v View)
}

// LogNotifier writes everything to the log and answers confirmations with a
// fixed choice. It is used by headless runs.
type LogNotifier struct {
	log     *zap.Logger
	confirm bool
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *zap.Logger, autoConfirm bool) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log, confirm: autoConfirm}
}

func (n *LogNotifier) Message(_ context.Context, text string) {
	n.log.Info(text)
}

func (n *LogNotifier) Confirm(_ context.Context, question string) bool {
	n.log.Info("confirmation", zap.String("question", question), zap.Bool("answer", n.confirm))
	return n.confirm
}

func (n *LogNotifier) Prompt(_ context.Context, question, value string) (string, bool) {
	n.log.Info("prompt", zap.String("question", question), zap.String("value", value))
	return "", false
}

func (n *LogNotifier) Copy(context.Context, string) error {
	return ErrNoClipboard
}

func (n *LogNotifier) Render(_ context.Context, v View) {
	n.log.Debug("panel",
		zap.Int("selected", v.Selected),
		zap.Int("queued", v.Queued),
		zap.Int("failed", v.Failed),
		zap.String("status", v.StatusLine))
}

// NoticeKind says how a notice expects to be answered
type NoticeKind string

// NoticeKind constants
const (
	NoticeMessage NoticeKind = "message"
	NoticeConfirm NoticeKind = "confirm"
	NoticePrompt  NoticeKind = "prompt"
	NoticeCopy    NoticeKind = "copy"
)

// Notice is one item waiting in the Inbox
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	Text      string     `json:"text"`
	Value     string     `json:"value,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Answer resolves a confirm or prompt notice
type Answer struct {
	Accept bool   `json:"accept"`
	Value  string `json:"value"`
}

// ErrUnknownNotice is returned when answering a notice that is not waiting
var ErrUnknownNotice = errors.New("unknown notice")

// Inbox is a Notifier driven over HTTP. Messages queue up until read;
// confirmations and prompts block until answered or until the timeout, which
// counts as a refusal.
type Inbox struct {
	mu       sync.Mutex
	notices  []Notice
	waiting  map[string]chan Answer
	view     View
	timeout  time.Duration
	capacity int
}

// NewInbox creates an inbox whose questions expire after timeout
func NewInbox(timeout time.Duration) *Inbox {
	return &Inbox{
		waiting:  make(map[string]chan Answer),
		timeout:  timeout,
		capacity: 100,
	}
}

// push queues a notice. A non-nil answer channel registers it as an open
// question, which trimming never evicts.
func (b *Inbox) push(kind NoticeKind, text, value string, answer chan Answer) Notice {
	n := Notice{ID: uuid.NewString(), Kind: kind, Text: text, Value: value, CreatedAt: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if answer != nil {
		b.waiting[n.ID] = answer
	}
	b.trimLocked()
	return n
}

// trimLocked drops the oldest answered-or-plain notices over capacity
func (b *Inbox) trimLocked() {
	excess := len(b.notices) - b.capacity
	if excess <= 0 {
		return
	}
	kept := b.notices[:0]
	for _, n := range b.notices {
		if _, open := b.waiting[n.ID]; excess > 0 && !open {
			excess--
			continue
		}
		kept = append(kept, n)
	}
	b.notices = kept
}

func (b *Inbox) drop(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiting, id)
	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return
		}
	}
}

func (b *Inbox) ask(ctx context.Context, kind NoticeKind, text, value string) (Answer, bool) {
	ch := make(chan Answer, 1)
	n := b.push(kind, text, value, ch)
	defer b.drop(n.ID)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case a := <-ch:
		return a, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return Answer{}, false
}

// Notices returns the unread messages and the open questions
func (b *Inbox) Notices() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}

// Dismiss removes a message that needs no answer
func (b *Inbox) Dismiss(id string) {
	b.mu.Lock()
	_, asking := b.waiting[id]
	b.mu.Unlock()
	if !asking {
		b.drop(id)
	}
}

// Answer resolves an open question
func (b *Inbox) Answer(id string, a Answer) error {
	b.mu.Lock()
	ch, ok := b.waiting[id]
	b.mu.Unlock()
	if !ok {
		return ErrUnknownNotice
	}
	select {
	case ch <- a:
	default:
	}
	return nil
}

// View returns the last rendered panel state
func (b *Inbox) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

func (b *Inbox) Message(_ context.Context, text string) {
	b.push(NoticeMessage, text, "", nil)
}

func (b *Inbox) Confirm(ctx context.Context, question string) bool {
	a, ok := b.ask(ctx, NoticeConfirm, question, "")
	return ok && a.Accept
}

func (b *Inbox) Prompt(ctx context.Context, question, value string) (string, bool) {
	a, ok := b.ask(ctx, NoticePrompt, question, value)
	if !ok || !a.Accept {
		return "", false
	}
	return a.Value, true
}

// Copy hands the text to the client, which owns the clipboard
func (b *Inbox) Copy(_ context.Context, text string) error {
	b.push(NoticeCopy, "copy to clipboard", text, nil)
	return nil
}

func (b *Inbox) Render(_ context.Context, v View) {
	b.mu.Lock()
	b.view = v
	b.mu.Unlock()
}
