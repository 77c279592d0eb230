// Package upload persists multipart uploads and classifies them by extension.
package upload

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const FormField = "file"

type Filetype string

const (
	Image Filetype = "image"
	Video Filetype = "video"
	Other Filetype = "other"
)

var (
	ImageExtensions = map[string]bool{"png": true, "jpg": true, "jpeg": true}
	VideoExtensions = map[string]bool{"mp4": true, "avi": true, "3gpp": true, "3gp": true}
)

var ErrNoFile = errors.New("no file provided")

type File struct {
	Filename string
	Filepath string
	Filetype Filetype
}

// Process reads the FormField part of r, saves it under dir and classifies it.
// The multipart form must already be bounded by the caller (http.MaxBytesReader).
func Process(r *http.Request, dir string) (*File, error) {
	src, header, err := r.FormFile(FormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, ErrNoFile
	}
	defer src.Close()

	return Save(src, header, dir)
}

// Save writes an already opened multipart part to dir. The stored name is the sanitized
// client name behind a random prefix, so concurrent uploads never share a file.
func Save(src multipart.File, header *multipart.FileHeader, dir string) (*File, error) {
	filename := uuid.NewString()
	if name := SecureFilename(header.Filename); name != "" {
		filename += "_" + name
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload directory %s", dir)
	}

	path := filepath.Join(dir, filename)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return nil, errors.Wrapf(err, "write %s", path)
	}
	if err := dst.Close(); err != nil {
		return nil, errors.Wrapf(err, "close %s", path)
	}

	return &File{
		Filename: filename,
		Filepath: path,
		Filetype: Classify(filename),
	}, nil
}

func Classify(filename string) Filetype {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch {
	case ImageExtensions[ext]:
		return Image
	case VideoExtensions[ext]:
		return Video
	default:
		return Other
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client supplied name to a flat ASCII filename that is safe to join
// with a directory.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base("/" + name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" || name == "." {
		return ""
	}
	return name
}
