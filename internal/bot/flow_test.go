package bot

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/m3rciful/drivebot/core/telegram/state"
	"github.com/m3rciful/drivebot/internal/drive"
	"github.com/m3rciful/drivebot/internal/events"
	"github.com/m3rciful/drivebot/internal/storage"
)

type fakeGateway struct {
	existing map[string]string
	created  []string
	uploads  []drive.UploadRequest

	resolveErr error
	ensureErr  error
	uploadErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{existing: make(map[string]string)}
}

func (g *fakeGateway) Resolve(_ context.Context, segments []string) (string, bool, error) {
	if g.resolveErr != nil {
		return "", false, g.resolveErr
	}
	id, ok := g.existing[drive.JoinPath(segments)]
	return id, ok, nil
}

func (g *fakeGateway) EnsurePath(_ context.Context, segments []string) (string, error) {
	if g.ensureErr != nil {
		return "", g.ensureErr
	}
	var id string
	for i := range segments {
		path := drive.JoinPath(segments[:i+1])
		existing, ok := g.existing[path]
		if !ok {
			existing = "folder-" + path
			g.existing[path] = existing
			g.created = append(g.created, path)
		}
		id = existing
	}
	return id, nil
}

func (g *fakeGateway) Upload(_ context.Context, req drive.UploadRequest) (string, error) {
	if g.uploadErr != nil {
		return "", g.uploadErr
	}
	g.uploads = append(g.uploads, req)
	return "file-1", nil
}

type fakeRecorder struct {
	records []storage.Upload
}

func (r *fakeRecorder) Record(_ context.Context, u storage.Upload) error {
	r.records = append(r.records, u)
	return nil
}

func (r *fakeRecorder) Recent(_ context.Context, chatID int64, limit int) ([]storage.Upload, error) {
	var out []storage.Upload
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r.records[i].ChatID == chatID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *fakeRecorder) Count(_ context.Context) (int64, error) {
	return int64(len(r.records)), nil
}

type fakePublisher struct {
	published []events.UploadCompleted
}

func (p *fakePublisher) PublishUploadCompleted(_ context.Context, ev events.UploadCompleted) error {
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// fakeDownloader writes a real file so temp cleanup can be asserted.
type fakeDownloader struct {
	fail     bool
	lastDest string
}

func (d *fakeDownloader) Download(_ context.Context, _, dest string) error {
	d.lastDest = dest
	if d.fail {
		return errors.New("telegram file unavailable")
	}
	return os.WriteFile(dest, []byte("content"), 0o644)
}

type flowFixture struct {
	flow     *Flow
	sessions state.Manager
	gateway  *fakeGateway
	recorder *fakeRecorder
	pub      *fakePublisher
	files    *fakeDownloader
	actor    Actor
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	gw := newFakeGateway()
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	mgr := state.NewMemoryManager()
	return &flowFixture{
		flow:     NewFlow(mgr, gw, rec, pub, t.TempDir()),
		sessions: mgr,
		gateway:  gw,
		recorder: rec,
		pub:      pub,
		files:    &fakeDownloader{},
		actor:    Actor{UserID: 7, ChatID: 7},
	}
}

func (f *flowFixture) assertIdle(t *testing.T) {
	t.Helper()
	if f.sessions.InProgress(f.actor.UserID) {
		t.Fatalf("expected idle state, got %q", f.sessions.GetState(f.actor.UserID))
	}
}

func (f *flowFixture) assertTempRemoved(t *testing.T) {
	t.Helper()
	if f.files.lastDest == "" {
		return
	}
	if _, err := os.Stat(f.files.lastDest); !os.IsNotExist(err) {
		t.Fatalf("expected temp file %s to be removed, stat err: %v", f.files.lastDest, err)
	}
}

func TestFlowCreatesMissingFoldersAndUploads(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	reply := f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "report.pdf", Size: 42})
	if reply.Text != msgAskPath("report.pdf") {
		t.Fatalf("unexpected greeting: %q", reply.Text)
	}
	if got := f.sessions.GetState(f.actor.UserID); got != StateAwaitingPath {
		t.Fatalf("state = %q, want %q", got, StateAwaitingPath)
	}

	reply = f.flow.SetPath(ctx, f.actor, "2025/Amazon")
	if reply.Text != msgConfirmCreate("2025/Amazon") {
		t.Fatalf("unexpected confirm prompt: %q", reply.Text)
	}
	if !reply.ConfirmKeyboard {
		t.Fatal("expected confirm keyboard")
	}
	if got := f.sessions.GetState(f.actor.UserID); got != StateAwaitingConfirm {
		t.Fatalf("state = %q, want %q", got, StateAwaitingConfirm)
	}

	reply = f.flow.Confirm(ctx, f.actor, "yes", f.files)
	if reply.Text != msgUploaded("2025/Amazon") {
		t.Fatalf("unexpected final reply: %q", reply.Text)
	}

	if len(f.gateway.created) != 2 || f.gateway.created[0] != "2025" || f.gateway.created[1] != "2025/Amazon" {
		t.Fatalf("created folders = %v, want [2025 2025/Amazon]", f.gateway.created)
	}
	if len(f.gateway.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(f.gateway.uploads))
	}
	up := f.gateway.uploads[0]
	if up.Name != "report.pdf" || up.FolderID != "folder-2025/Amazon" {
		t.Fatalf("unexpected upload request: %+v", up)
	}

	if len(f.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(f.recorder.records))
	}
	rec := f.recorder.records[0]
	if rec.Path != "2025/Amazon" || rec.DriveFileID != "file-1" || rec.SizeBytes != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(f.pub.published) != 1 || f.pub.published[0].DriveFileID != "file-1" {
		t.Fatalf("unexpected published events: %+v", f.pub.published)
	}
	if f.pub.published[0].UploadedAt.IsZero() {
		t.Fatal("published event is missing its timestamp")
	}

	f.assertIdle(t)
	f.assertTempRemoved(t)
}

func TestFlowUploadsIntoExistingFolder(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.gateway.existing["Invoices"] = "folder-inv"

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "bill.pdf"})
	reply := f.flow.SetPath(ctx, f.actor, "Invoices")
	if reply.Text != msgConfirmExisting("Invoices") {
		t.Fatalf("unexpected confirm prompt: %q", reply.Text)
	}

	reply = f.flow.Confirm(ctx, f.actor, "Yes", f.files)
	if reply.Text != msgUploaded("Invoices") {
		t.Fatalf("unexpected final reply: %q", reply.Text)
	}
	if len(f.gateway.created) != 0 {
		t.Fatalf("created folders = %v, want none", f.gateway.created)
	}
	if len(f.gateway.uploads) != 1 || f.gateway.uploads[0].FolderID != "folder-inv" {
		t.Fatalf("unexpected uploads: %+v", f.gateway.uploads)
	}
	f.assertIdle(t)
}

func TestFlowDeclineLeavesDriveUntouched(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.gateway.existing["Invoices"] = "folder-inv"

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "bill.pdf"})
	f.flow.SetPath(ctx, f.actor, "Invoices")
	reply := f.flow.Confirm(ctx, f.actor, "no", f.files)

	if reply.Text != msgCancelled {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if len(f.gateway.created) != 0 || len(f.gateway.uploads) != 0 {
		t.Fatalf("expected no Drive mutations, got created=%v uploads=%v", f.gateway.created, f.gateway.uploads)
	}
	if len(f.recorder.records) != 0 {
		t.Fatalf("expected no records, got %d", len(f.recorder.records))
	}
	f.assertIdle(t)
}

func TestFlowCancelResetsState(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "doc.txt"})
	reply := f.flow.Cancel(f.actor)
	if reply.Text != msgCancelled {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	f.assertIdle(t)

	f.flow.Begin(f.actor, FileRef{ID: "tg-2", Name: "doc.txt"})
	f.flow.SetPath(ctx, f.actor, "Docs")
	f.flow.Cancel(f.actor)
	f.assertIdle(t)
	if len(f.gateway.uploads) != 0 {
		t.Fatalf("expected no uploads after cancel, got %d", len(f.gateway.uploads))
	}
}

func TestFlowInvalidPathReprompts(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "doc.txt"})
	reply := f.flow.SetPath(ctx, f.actor, "///")
	if reply.Text != msgInvalidPath {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if got := f.sessions.GetState(f.actor.UserID); got != StateAwaitingPath {
		t.Fatalf("state = %q, want %q", got, StateAwaitingPath)
	}

	reply = f.flow.SetPath(ctx, f.actor, "Docs")
	if reply.Text != msgConfirmCreate("Docs") {
		t.Fatalf("valid retry rejected: %q", reply.Text)
	}
}

func TestFlowUnknownAnswerReprompts(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "doc.txt"})
	f.flow.SetPath(ctx, f.actor, "Docs")

	reply := f.flow.Confirm(ctx, f.actor, "maybe", f.files)
	if reply.Text != msgAnswerYesNo {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if got := f.sessions.GetState(f.actor.UserID); got != StateAwaitingConfirm {
		t.Fatalf("state = %q, want %q", got, StateAwaitingConfirm)
	}
	if len(f.gateway.uploads) != 0 {
		t.Fatal("unexpected upload before confirmation")
	}

	reply = f.flow.Confirm(ctx, f.actor, "y", f.files)
	if reply.Text != msgUploaded("Docs") {
		t.Fatalf("short yes not accepted: %q", reply.Text)
	}
}

func TestFlowResolveFailureResets(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.gateway.resolveErr = errors.New("api unavailable")

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "doc.txt"})
	reply := f.flow.SetPath(ctx, f.actor, "Docs")
	if reply.Text != msgDriveFailed {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	f.assertIdle(t)
}

func TestFlowDownloadFailureCleansUp(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.files.fail = true

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "doc.txt"})
	f.flow.SetPath(ctx, f.actor, "Docs")
	reply := f.flow.Confirm(ctx, f.actor, "yes", f.files)

	if reply.Text != msgUploadFailed {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if len(f.gateway.created) != 0 || len(f.gateway.uploads) != 0 {
		t.Fatalf("expected no Drive mutations, got created=%v uploads=%v", f.gateway.created, f.gateway.uploads)
	}
	f.assertIdle(t)
	f.assertTempRemoved(t)
}

func TestFlowUploadFailureCleansUp(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.gateway.uploadErr = errors.New("quota exceeded")

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "doc.txt"})
	f.flow.SetPath(ctx, f.actor, "Docs")
	reply := f.flow.Confirm(ctx, f.actor, "yes", f.files)

	if reply.Text != msgDriveFailed {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if len(f.recorder.records) != 0 || len(f.pub.published) != 0 {
		t.Fatal("failed upload must not be recorded or published")
	}
	f.assertIdle(t)
	f.assertTempRemoved(t)
}

func TestFlowRestartsOnNewDocument(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	f.flow.Begin(f.actor, FileRef{ID: "tg-1", Name: "old.txt"})
	f.flow.SetPath(ctx, f.actor, "Docs")

	reply := f.flow.Begin(f.actor, FileRef{ID: "tg-2", Name: "new.txt"})
	if reply.Text != msgAskPath("new.txt") {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if got := f.sessions.GetState(f.actor.UserID); got != StateAwaitingPath {
		t.Fatalf("state = %q, want %q", got, StateAwaitingPath)
	}

	f.flow.SetPath(ctx, f.actor, "Other")
	f.flow.Confirm(ctx, f.actor, "yes", f.files)
	if len(f.gateway.uploads) != 1 || f.gateway.uploads[0].Name != "new.txt" {
		t.Fatalf("expected upload of new.txt, got %+v", f.gateway.uploads)
	}
}
