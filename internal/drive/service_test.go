package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type uploadCall struct {
	name     string
	mimeType string
	parentID string
}

// fakeFilesAPI keeps folders as parentID -> name -> id.
type fakeFilesAPI struct {
	folders map[string]map[string]string
	nextID  int
	created []string
	uploads []uploadCall

	findErr   error
	createErr error
	uploadErr error
}

func newFakeFilesAPI() *fakeFilesAPI {
	return &fakeFilesAPI{folders: make(map[string]map[string]string)}
}

func (f *fakeFilesAPI) addFolder(parentID, name, id string) {
	if f.folders[parentID] == nil {
		f.folders[parentID] = make(map[string]string)
	}
	f.folders[parentID][name] = id
}

func (f *fakeFilesAPI) FindFolder(_ context.Context, name, parentID string) (string, bool, error) {
	if f.findErr != nil {
		return "", false, f.findErr
	}
	id, ok := f.folders[parentID][name]
	return id, ok, nil
}

func (f *fakeFilesAPI) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("folder-%d", f.nextID)
	f.addFolder(parentID, name, id)
	f.created = append(f.created, name)
	return id, nil
}

func (f *fakeFilesAPI) UploadFile(_ context.Context, name, mimeType, parentID, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, uploadCall{name: name, mimeType: mimeType, parentID: parentID})
	return "file-1", nil
}

func TestServiceResolveWalksSegments(t *testing.T) {
	api := newFakeFilesAPI()
	api.addFolder("root", "Invoices", "f-inv")
	api.addFolder("f-inv", "2025", "f-2025")
	svc := newService(api, "root")

	id, found, err := svc.Resolve(context.Background(), []string{"Invoices", "2025"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !found || id != "f-2025" {
		t.Fatalf("Resolve = (%q, %v), want (f-2025, true)", id, found)
	}
}

func TestServiceResolveMissingSegment(t *testing.T) {
	api := newFakeFilesAPI()
	api.addFolder("root", "Invoices", "f-inv")
	svc := newService(api, "root")

	_, found, err := svc.Resolve(context.Background(), []string{"Invoices", "2025"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if found {
		t.Fatal("Resolve found missing path")
	}
	if len(api.created) != 0 {
		t.Fatalf("Resolve created folders: %v", api.created)
	}
}

func TestServiceEnsurePathCreatesMissing(t *testing.T) {
	api := newFakeFilesAPI()
	api.addFolder("root", "Invoices", "f-inv")
	svc := newService(api, "root")

	id, err := svc.EnsurePath(context.Background(), []string{"Invoices", "2025", "Amazon"})
	if err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}
	if id == "" {
		t.Fatal("EnsurePath returned empty id")
	}
	if len(api.created) != 2 {
		t.Fatalf("created %v, want 2 folders", api.created)
	}
	if api.created[0] != "2025" || api.created[1] != "Amazon" {
		t.Fatalf("created order %v, want [2025 Amazon]", api.created)
	}
}

func TestServiceUploadGuessesMimeType(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	api := newFakeFilesAPI()
	svc := newService(api, "root")

	id, err := svc.Upload(context.Background(), UploadRequest{LocalPath: local, Name: "report.pdf", FolderID: "f-1"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != "file-1" {
		t.Fatalf("Upload id = %q", id)
	}
	if got := api.uploads[0].mimeType; got != "application/pdf" {
		t.Fatalf("mime = %q, want application/pdf", got)
	}

	if _, err := svc.Upload(context.Background(), UploadRequest{LocalPath: local, Name: "blob.weird", FolderID: "f-1"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := api.uploads[1].mimeType; got != "application/octet-stream" {
		t.Fatalf("fallback mime = %q, want application/octet-stream", got)
	}
}

func TestServiceWrapsRemoteErrors(t *testing.T) {
	boom := errors.New("quota exceeded")

	api := newFakeFilesAPI()
	api.findErr = boom
	svc := newService(api, "root")

	_, _, err := svc.Resolve(context.Background(), []string{"Invoices"})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Resolve error %v, want *RemoteError", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("RemoteError does not unwrap to cause")
	}
	if remote.Code() != "DRIVE_REMOTE" {
		t.Fatalf("Code = %q", remote.Code())
	}

	api = newFakeFilesAPI()
	api.uploadErr = boom
	svc = newService(api, "root")
	if _, err := svc.Upload(context.Background(), UploadRequest{Name: "a.txt"}); !errors.As(err, &remote) {
		t.Fatalf("Upload error %v, want *RemoteError", err)
	}
}
