package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/drivebot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

// stubContext implements the few tele.Context methods the handlers touch.
// Unimplemented methods panic via the embedded nil interface.
type stubContext struct {
	tele.Context
	user  *tele.User
	chat  *tele.Chat
	store map[string]interface{}
	sent  []string
}

func newStubContext(id int64) *stubContext {
	return &stubContext{
		user:  &tele.User{ID: id},
		chat:  &tele.Chat{ID: id},
		store: make(map[string]interface{}),
	}
}

func (s *stubContext) Update() tele.Update { return tele.Update{ID: 1} }

func (s *stubContext) Sender() *tele.User { return s.user }

func (s *stubContext) Chat() *tele.Chat { return s.chat }

func (s *stubContext) Get(key string) interface{} { return s.store[key] }

func (s *stubContext) Set(key string, v interface{}) { s.store[key] = v }

func (s *stubContext) Send(what interface{}, _ ...interface{}) error {
	if text, ok := what.(string); ok {
		s.sent = append(s.sent, text)
	}
	return nil
}

func TestHistoryScopedToChatAndLimited(t *testing.T) {
	now := time.Now()
	rec := &fakeRecorder{records: []storage.Upload{
		{ChatID: 7, FileName: "a.pdf", Path: "Docs", UploadedAt: now},
		{ChatID: 8, FileName: "b.pdf", Path: "Other", UploadedAt: now},
		{ChatID: 7, FileName: "c.pdf", Path: "Docs", UploadedAt: now},
	}}
	h := NewHandlers(nil, rec, 1)

	c := newStubContext(7)
	if err := h.History(c); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(c.sent))
	}
	out := c.sent[0]
	if !strings.Contains(out, "c.pdf") {
		t.Fatalf("newest upload missing from history: %q", out)
	}
	if strings.Contains(out, "a.pdf") {
		t.Fatalf("limit not applied: %q", out)
	}
	if strings.Contains(out, "b.pdf") {
		t.Fatalf("history leaked another chat's upload: %q", out)
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHandlers(nil, &fakeRecorder{}, 10)

	c := newStubContext(7)
	if err := h.History(c); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(c.sent) != 1 || c.sent[0] != msgHistoryEmpty {
		t.Fatalf("unexpected reply: %v", c.sent)
	}
}
