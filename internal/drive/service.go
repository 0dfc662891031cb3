package drive

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/m3rciful/drivebot/core/logger"
	"log/slog"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const folderMimeType = "application/vnd.google-apps.folder"

// UploadRequest describes a local file to be placed into a Drive folder.
type UploadRequest struct {
	LocalPath string
	Name      string
	FolderID  string
}

// Gateway exposes the folder and upload operations the upload flow needs.
// The conversation controller depends on this interface so tests can
// substitute an in-memory folder tree.
type Gateway interface {
	// Resolve walks the path one segment at a time under the root folder and
	// returns the id of the final folder, or found=false when any segment is
	// missing. It never mutates the remote tree.
	Resolve(ctx context.Context, segments []string) (folderID string, found bool, err error)
	// EnsurePath walks the path, creating every missing segment, and returns
	// the id of the final folder.
	EnsurePath(ctx context.Context, segments []string) (string, error)
	// Upload places the local file into the given folder and returns the
	// remote file id.
	Upload(ctx context.Context, req UploadRequest) (string, error)
}

// filesAPI is the minimal surface of the Drive files collection used by
// Service. Tests substitute a scripted implementation.
type filesAPI interface {
	FindFolder(ctx context.Context, name, parentID string) (id string, found bool, err error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadFile(ctx context.Context, name, mimeType, parentID, localPath string) (string, error)
}

type googleFilesAPI struct {
	svc *gdrive.Service
}

func (g *googleFilesAPI) FindFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	query := fmt.Sprintf(
		"name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		name, folderMimeType, parentID,
	)
	r, err := g.svc.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, err
	}
	if len(r.Files) == 0 {
		return "", false, nil
	}
	return r.Files[0].Id, true, nil
}

func (g *googleFilesAPI) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	meta := &gdrive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}
	f, err := g.svc.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (g *googleFilesAPI) UploadFile(ctx context.Context, name, mimeType, parentID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	meta := &gdrive.File{
		Name:    name,
		Parents: []string{parentID},
	}
	created, err := g.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// Service implements Gateway against the Drive v3 API, resolving every path
// under a fixed root folder.
type Service struct {
	api    filesAPI
	rootID string
}

func newService(api filesAPI, rootID string) *Service {
	return &Service{api: api, rootID: rootID}
}

// Resolve implements Gateway.
func (s *Service) Resolve(ctx context.Context, segments []string) (string, bool, error) {
	parentID := s.rootID
	for _, name := range segments {
		id, found, err := s.api.FindFolder(ctx, name, parentID)
		if err != nil {
			return "", false, remoteErr("resolve folder "+name, err)
		}
		if !found {
			logger.Debug(ctx, "drive", "resolve.miss",
				slog.String("status", "ok"),
				slog.String("path", JoinPath(segments)),
				slog.String("folder_id", parentID),
			)
			return "", false, nil
		}
		parentID = id
	}
	return parentID, true, nil
}

// EnsurePath implements Gateway.
func (s *Service) EnsurePath(ctx context.Context, segments []string) (string, error) {
	parentID := s.rootID
	for _, name := range segments {
		id, found, err := s.api.FindFolder(ctx, name, parentID)
		if err != nil {
			return "", remoteErr("resolve folder "+name, err)
		}
		if !found {
			id, err = s.api.CreateFolder(ctx, name, parentID)
			if err != nil {
				return "", remoteErr("create folder "+name, err)
			}
			logger.Info(ctx, "drive", "folder.created",
				slog.String("status", "ok"),
				slog.String("path", name),
				slog.String("folder_id", id),
			)
		}
		parentID = id
	}
	return parentID, nil
}

// Upload implements Gateway. The MIME type is guessed from the file extension
// with application/octet-stream as fallback.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (string, error) {
	mimeType := mime.TypeByExtension(filepath.Ext(req.Name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	fileID, err := s.api.UploadFile(ctx, req.Name, mimeType, req.FolderID, req.LocalPath)
	if err != nil {
		return "", remoteErr("upload "+req.Name, err)
	}
	logger.Info(ctx, "drive", "file.uploaded",
		slog.String("status", "ok"),
		slog.String("file_name", req.Name),
		slog.String("file_id", fileID),
		slog.String("folder_id", req.FolderID),
	)
	return fileID, nil
}

var _ Gateway = (*Service)(nil)
