package attachments

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/relabs-tech/sensorhub/core/logger"
)

// LocalFilesystem stores attachments below a base folder. Each key
// becomes a directory holding the file content and its content type.
type LocalFilesystem struct {
	baseFolder string
}

// NewLocalFilesystem returns a filesystem driver rooted at baseFolder.
func NewLocalFilesystem(baseFolder string) (*LocalFilesystem, error) {
	err := os.MkdirAll(baseFolder, 0700)
	if err != nil {
		return nil, err
	}
	logger.Default().Debugln("filesystem attachments enabled at", baseFolder)
	return &LocalFilesystem{baseFolder: baseFolder}, nil
}

func (f *LocalFilesystem) keyFolder(key string) (string, bool) {
	if strings.Contains(key, "..") {
		return "", false
	}
	return filepath.Join(f.baseFolder, key), true
}

// Upload implements Driver
func (f *LocalFilesystem) Upload(ctx context.Context, key string, contentType string, data io.Reader) error {
	folder, ok := f.keyFolder(key)
	if !ok {
		return os.ErrInvalid
	}
	err := os.MkdirAll(folder, 0700)
	if err != nil {
		return err
	}
	dstFile, err := os.Create(filepath.Join(folder, "file"))
	if err != nil {
		return err
	}
	defer dstFile.Close()
	_, err = io.Copy(dstFile, data)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(folder, "content-type"), []byte(contentType), 0600)
}

// Download implements Driver
func (f *LocalFilesystem) Download(ctx context.Context, key string, w io.Writer) (string, error) {
	folder, ok := f.keyFolder(key)
	if !ok {
		return "", os.ErrInvalid
	}
	file, err := os.Open(filepath.Join(folder, "file"))
	if os.IsNotExist(err) {
		return "", ErrNotExist
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	contentType, err := os.ReadFile(filepath.Join(folder, "content-type"))
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	_, err = io.Copy(w, file)
	return string(contentType), err
}

// Delete implements Driver
func (f *LocalFilesystem) Delete(ctx context.Context, key string) error {
	folder, ok := f.keyFolder(key)
	if !ok {
		return os.ErrInvalid
	}
	return os.RemoveAll(folder)
}

// DeleteAllWithPrefix implements Driver
func (f *LocalFilesystem) DeleteAllWithPrefix(ctx context.Context, prefix string) error {
	return f.Delete(ctx, prefix)
}
