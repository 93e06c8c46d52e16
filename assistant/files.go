package assistant

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// mimeExtensions maps the MIME types the assistant service emits to local
// file extensions. Unknown types fall back to ".bin".
var mimeExtensions = map[string]string{
	"text/x-c":              ".c",
	"text/x-csharp":         ".cs",
	"text/x-c++":            ".cpp",
	"application/msword":    ".doc",
	"text/html":             ".html",
	"text/x-java":           ".java",
	"application/json":      ".json",
	"text/markdown":         ".md",
	"application/pdf":       ".pdf",
	"text/x-php":            ".php",
	"text/x-python":         ".py",
	"text/x-script.python":  ".py",
	"text/x-ruby":           ".rb",
	"text/x-tex":            ".tex",
	"text/plain":            ".txt",
	"text/css":              ".css",
	"text/javascript":       ".js",
	"application/x-sh":      ".sh",
	"application/typescript": ".ts",
	"application/csv":       ".csv",
	"image/jpeg":            ".jpeg",
	"image/gif":             ".gif",
	"image/png":             ".png",
	"application/x-tar":     ".tar",
	"application/xml":       ".xml",
	"application/zip":       ".zip",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
}

func extensionForMIME(mimeType string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// fileRef identifies one downloadable file attachment.
type fileRef struct {
	ID       string
	MimeType string
}

// fileDownloader persists assistant-generated files to local storage under
// names derived from the file ID and resolved extension.
type fileDownloader struct {
	api    assistantAPI
	dir    string
	logger *zap.Logger
}

func newFileDownloader(api assistantAPI, dir string, logger *zap.Logger) *fileDownloader {
	if dir == "" {
		dir = "."
	}
	return &fileDownloader{api: api, dir: dir, logger: logger.Named("files")}
}

func (d *fileDownloader) download(ctx context.Context, ref fileRef) (SavedFile, error) {
	content, err := d.api.GetFileContent(ctx, ref.ID)
	if err != nil {
		return SavedFile{}, fmt.Errorf("fetch file content: %w", err)
	}
	defer func() { _ = content.Close() }()

	name := fmt.Sprintf("downloaded_file_%s%s", ref.ID, extensionForMIME(ref.MimeType))
	path := filepath.Join(d.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return SavedFile{}, fmt.Errorf("create local file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, content); err != nil {
		return SavedFile{}, fmt.Errorf("write local file: %w", err)
	}

	d.logger.Debug("file saved locally",
		zap.String("file_id", ref.ID),
		zap.String("path", path))

	return SavedFile{ID: ref.ID, MimeType: ref.MimeType, Path: path}, nil
}
