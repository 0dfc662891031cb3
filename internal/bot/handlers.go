package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/drivebot/core/telegram/callbacks"
	"github.com/m3rciful/drivebot/core/telegram/format"
	tghelpers "github.com/m3rciful/drivebot/core/telegram/helpers"
	"github.com/m3rciful/drivebot/core/telegram/keyboard"
	"github.com/m3rciful/drivebot/core/telegram/ui"
	"github.com/m3rciful/drivebot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

const confirmCallbackKey = "upload_confirm"

// Handlers adapts the upload flow to telebot endpoints.
type Handlers struct {
	flow         *Flow
	recorder     storage.Recorder
	historyLimit int
}

// NewHandlers builds the endpoint adapters around the flow.
func NewHandlers(flow *Flow, recorder storage.Recorder, historyLimit int) *Handlers {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Handlers{flow: flow, recorder: recorder, historyLimit: historyLimit}
}

// Start greets the user.
func (h *Handlers) Start(c tele.Context) error {
	return tghelpers.SendText(c, msgGreeting)
}

// Cancel aborts the current flow from any state.
func (h *Handlers) Cancel(c tele.Context) error {
	return h.send(c, h.flow.Cancel(actorFrom(c)))
}

// Document starts a new upload flow; a document received mid-flow restarts it.
func (h *Handlers) Document(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Document == nil {
		return nil
	}
	doc := msg.Document
	name := doc.FileName
	if name == "" {
		name = "document"
	}
	reply := h.flow.Begin(actorFrom(c), FileRef{
		ID:   doc.FileID,
		Name: name,
		Size: doc.FileSize,
	})
	return h.send(c, reply)
}

// AwaitingPath handles messages while the flow waits for a folder path.
func (h *Handlers) AwaitingPath(c tele.Context) error {
	if msg := c.Message(); msg != nil && msg.Document != nil {
		return h.Document(c)
	}
	ctx := tghelpers.WithHandler(c, "upload.path")
	return h.send(c, h.flow.SetPath(ctx, actorFrom(c), c.Text()))
}

// AwaitingConfirm handles typed yes/no answers.
func (h *Handlers) AwaitingConfirm(c tele.Context) error {
	if msg := c.Message(); msg != nil && msg.Document != nil {
		return h.Document(c)
	}
	ctx := tghelpers.WithHandler(c, "upload.confirm")
	reply := h.flow.Confirm(ctx, actorFrom(c), c.Text(), telebotDownloader{bot: c.Bot()})
	return h.send(c, reply)
}

// ConfirmCallback handles the inline Yes/No buttons.
func (h *Handlers) ConfirmCallback(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "upload.confirm")
	answer := callbacks.CallbackPayload(c)
	reply := h.flow.Confirm(ctx, actorFrom(c), answer, telebotDownloader{bot: c.Bot()})
	return h.send(c, reply)
}

// History lists the chat's recent uploads.
func (h *Handlers) History(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "history")
	items, err := h.recorder.Recent(ctx, c.Chat().ID, h.historyLimit)
	if err != nil {
		_ = tghelpers.SendText(c, "Could not load your upload history.")
		return err
	}
	if len(items) == 0 {
		return tghelpers.SendText(c, msgHistoryEmpty)
	}

	var b strings.Builder
	b.WriteString("Your recent uploads:\n")
	for _, u := range items {
		name, _ := format.EscapeMarkdown(u.FileName, format.MarkdownV1, "")
		path, _ := format.EscapeMarkdown(u.Path, format.MarkdownV1, "")
		fmt.Fprintf(&b, "• %s → %s (%s)\n", name, path, u.UploadedAt.Format("2006-01-02 15:04"))
	}
	return tghelpers.SendMD(c, b.String())
}

// Stats reports upload totals across all chats. Admin only.
func (h *Handlers) Stats(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "stats")
	n, err := h.recorder.Count(ctx)
	if err != nil {
		_ = tghelpers.SendText(c, "Could not load upload stats.")
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf("Total uploads recorded: %d", n))
}

func (h *Handlers) send(c tele.Context, r Reply) error {
	if r.Text == "" {
		return nil
	}
	if r.ConfirmKeyboard {
		return tghelpers.SendText(c, r.Text, &tele.SendOptions{ReplyMarkup: confirmMarkup()})
	}
	return tghelpers.SendText(c, r.Text)
}

func confirmMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Yes", Unique: confirmCallbackKey, Data: "yes"},
		{Text: "❌ No", Unique: confirmCallbackKey, Data: "no"},
	})
}

func actorFrom(c tele.Context) Actor {
	a := Actor{}
	if u := c.Sender(); u != nil {
		a.UserID = u.ID
	}
	if chat := c.Chat(); chat != nil {
		a.ChatID = chat.ID
	}
	return a
}

// telebotDownloader fetches Telegram files through the bot API.
type telebotDownloader struct {
	bot tele.API
}

func (d telebotDownloader) Download(_ context.Context, fileID, dest string) error {
	return d.bot.Download(&tele.File{FileID: fileID}, dest)
}

var _ Downloader = telebotDownloader{}

// fallbacks answers updates that map to no command, state, or callback.
type fallbacks struct {
	h *Handlers
}

func (f fallbacks) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, msgGreeting)
	}
}

func (f fallbacks) UnknownDocument() tele.HandlerFunc {
	return f.h.Document
}

func (f fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		return nil
	}
}

var _ ui.FallbackProvider = fallbacks{}
