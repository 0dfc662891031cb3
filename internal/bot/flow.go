package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m3rciful/drivebot/core/logger"
	"github.com/m3rciful/drivebot/core/telegram/state"
	"github.com/m3rciful/drivebot/internal/drive"
	"github.com/m3rciful/drivebot/internal/events"
	"github.com/m3rciful/drivebot/internal/storage"
	"log/slog"
)

// FSM states of the upload conversation.
const (
	// StateAwaitingPath means a document was received and the bot is waiting
	// for the destination folder path.
	StateAwaitingPath state.State = "upload:awaiting_path"
	// StateAwaitingConfirm means the path was resolved and the bot is waiting
	// for a yes/no answer.
	StateAwaitingConfirm state.State = "upload:awaiting_confirm"
)

// Session TempData keys used by the upload flow.
const (
	tempFileID      = "upload_file_id"
	tempFileName    = "upload_file_name"
	tempFileSize    = "upload_file_size"
	tempPath        = "upload_path"
	tempFolderID    = "upload_folder_id"
	tempNeedsCreate = "upload_needs_create"
)

// FileRef identifies a document offered by the user.
type FileRef struct {
	ID   string
	Name string
	Size int64
}

// Actor identifies the chat and user driving a flow step.
type Actor struct {
	UserID int64
	ChatID int64
}

// Downloader fetches a Telegram file to a local destination.
type Downloader interface {
	Download(ctx context.Context, fileID, dest string) error
}

// Reply is what a flow step wants said back to the user.
type Reply struct {
	Text            string
	ConfirmKeyboard bool
}

// Flow drives the upload conversation: await file, ask path, confirm, upload.
// One flow instance serves all chats; per-user progress lives in the session
// manager.
type Flow struct {
	sessions    state.Manager
	gateway     drive.Gateway
	recorder    storage.Recorder
	publisher   events.Publisher
	downloadDir string
}

// NewFlow wires the conversation controller. publisher may be nil when event
// publishing is disabled.
func NewFlow(sessions state.Manager, gw drive.Gateway, rec storage.Recorder, pub events.Publisher, downloadDir string) *Flow {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Flow{
		sessions:    sessions,
		gateway:     gw,
		recorder:    rec,
		publisher:   pub,
		downloadDir: downloadDir,
	}
}

// Begin starts (or restarts) the flow for a freshly received document.
func (f *Flow) Begin(actor Actor, ref FileRef) Reply {
	f.sessions.Clear(actor.UserID)
	f.sessions.SetTemp(actor.UserID, tempFileID, ref.ID)
	f.sessions.SetTemp(actor.UserID, tempFileName, ref.Name)
	f.sessions.SetTemp(actor.UserID, tempFileSize, ref.Size)
	f.sessions.SetState(actor.UserID, StateAwaitingPath)
	return Reply{Text: msgAskPath(ref.Name)}
}

// SetPath handles the folder path answer. Invalid input re-prompts without
// leaving StateAwaitingPath; a gateway failure resets the flow.
func (f *Flow) SetPath(ctx context.Context, actor Actor, input string) Reply {
	segments, err := drive.ParsePath(input)
	if err != nil {
		return Reply{Text: msgInvalidPath}
	}

	folderID, found, err := f.gateway.Resolve(ctx, segments)
	if err != nil {
		logger.Error(ctx, "service.uploads", "resolve.failed",
			slog.String("status", "fail"),
			slog.String("path", drive.JoinPath(segments)),
			slog.String("err", err.Error()),
		)
		f.sessions.Clear(actor.UserID)
		return Reply{Text: msgDriveFailed}
	}

	f.sessions.SetTemp(actor.UserID, tempPath, segments)
	f.sessions.SetTemp(actor.UserID, tempNeedsCreate, !found)
	f.sessions.SetState(actor.UserID, StateAwaitingConfirm)

	path := drive.JoinPath(segments)
	if found {
		f.sessions.SetTemp(actor.UserID, tempFolderID, folderID)
		return Reply{Text: msgConfirmExisting(path), ConfirmKeyboard: true}
	}
	return Reply{Text: msgConfirmCreate(path), ConfirmKeyboard: true}
}

// Confirm handles the yes/no answer. Anything unrecognized re-prompts without
// transitioning.
func (f *Flow) Confirm(ctx context.Context, actor Actor, answer string, files Downloader) Reply {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y":
		return f.finish(ctx, actor, files)
	case "no", "n":
		f.sessions.Clear(actor.UserID)
		return Reply{Text: msgCancelled}
	default:
		return Reply{Text: msgAnswerYesNo, ConfirmKeyboard: true}
	}
}

// Cancel aborts the flow from any state and discards pending data.
func (f *Flow) Cancel(actor Actor) Reply {
	f.sessions.Clear(actor.UserID)
	return Reply{Text: msgCancelled}
}

// finish downloads the pending file, creates missing folders when needed,
// uploads, and records the result. The temp file is removed on every path.
func (f *Flow) finish(ctx context.Context, actor Actor, files Downloader) Reply {
	fileID := f.tempString(actor.UserID, tempFileID)
	fileName := f.tempString(actor.UserID, tempFileName)
	size, _ := f.sessions.GetTempInt64(actor.UserID, tempFileSize)
	segments := f.tempSegments(actor.UserID)
	folderID := f.tempString(actor.UserID, tempFolderID)
	needsCreate := f.tempBool(actor.UserID, tempNeedsCreate)

	defer f.sessions.Clear(actor.UserID)

	if fileID == "" || len(segments) == 0 {
		return Reply{Text: msgUploadFailed}
	}
	path := drive.JoinPath(segments)

	if err := os.MkdirAll(f.downloadDir, 0o755); err != nil {
		logger.Error(ctx, "service.uploads", "download.failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return Reply{Text: msgUploadFailed}
	}
	local := filepath.Join(f.downloadDir, fmt.Sprintf("%d_%s", actor.ChatID, filepath.Base(fileName)))
	if err := files.Download(ctx, fileID, local); err != nil {
		logger.Error(ctx, "service.uploads", "download.failed",
			slog.String("status", "fail"),
			slog.String("file_name", fileName),
			slog.String("err", err.Error()),
		)
		_ = os.Remove(local)
		return Reply{Text: msgUploadFailed}
	}
	defer os.Remove(local)

	if needsCreate {
		id, err := f.gateway.EnsurePath(ctx, segments)
		if err != nil {
			logger.Error(ctx, "service.uploads", "ensure_path.failed",
				slog.String("status", "fail"),
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
			return Reply{Text: msgDriveFailed}
		}
		folderID = id
	}

	driveFileID, err := f.gateway.Upload(ctx, drive.UploadRequest{
		LocalPath: local,
		Name:      fileName,
		FolderID:  folderID,
	})
	if err != nil {
		logger.Error(ctx, "service.uploads", "upload.failed",
			slog.String("status", "fail"),
			slog.String("file_name", fileName),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return Reply{Text: msgDriveFailed}
	}

	record := storage.Upload{
		ChatID:      actor.ChatID,
		UserID:      actor.UserID,
		FileName:    fileName,
		Path:        path,
		DriveFileID: driveFileID,
		SizeBytes:   size,
	}
	if err := f.recorder.Record(ctx, record); err != nil {
		// History is best effort; the file is already on Drive.
		logger.Warn(ctx, "service.uploads", "history.record_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	if err := f.publisher.PublishUploadCompleted(ctx, events.UploadCompleted{
		ChatID:      actor.ChatID,
		FileName:    fileName,
		Path:        path,
		DriveFileID: driveFileID,
		SizeBytes:   size,
		UploadedAt:  time.Now().UTC(),
	}); err != nil {
		logger.Warn(ctx, "service.uploads", "event.publish_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "service.uploads", "upload.completed",
		slog.String("status", "ok"),
		slog.String("file_name", fileName),
		slog.String("path", path),
		slog.String("file_id", driveFileID),
		slog.Int64("size_bytes", size),
	)
	return Reply{Text: msgUploaded(path)}
}

func (f *Flow) tempString(userID int64, key string) string {
	v, ok := f.sessions.GetTemp(userID, key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (f *Flow) tempBool(userID int64, key string) bool {
	v, ok := f.sessions.GetTemp(userID, key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (f *Flow) tempSegments(userID int64) []string {
	v, ok := f.sessions.GetTemp(userID, tempPath)
	if !ok {
		return nil
	}
	segments, _ := v.([]string)
	return segments
}
