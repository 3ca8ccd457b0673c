package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	perr "github.com/Brownie44l1/waste-api/internal/errors"
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// maxMemory is how much of a multipart body is kept in memory before
// spilling to temp files
const maxMemory = 10 << 20

// allowedFile checks the text after the last dot, ignoring case. The
// content itself is not inspected.
func allowedFile(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return allowedExtensions[strings.ToLower(name[i+1:])]
}

// secureFilename reduces name to an ASCII file name that cannot escape the
// upload directory
func secureFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if r == '/' || r == '\\' {
			return ' '
		}
		return r
	}, name)

	name = strings.Join(strings.Fields(name), "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '.', r == '-':
			return r
		}
		return -1
	}, name)
	return strings.Trim(name, "._")
}

// storedName prefixes the secured name with a short random id so uploads
// never overwrite each other
func storedName(original string) string {
	safe := secureFilename(original)
	if safe == "" {
		safe = "upload"
	}
	return uuid.NewString()[:8] + "_" + safe
}

func (h *Handler) uploadPath(name string) string {
	return filepath.Join(h.cfg.UploadDir, name)
}

// receive validates the multipart upload and writes it to the upload
// directory, returning the stored file name
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) (string, error) {
	limit := h.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || r.ContentLength > limit {
			return "", perr.Wrap(err, perr.ErrorCodeTooLarge, "File too large")
		}
		return "", perr.Wrap(err, perr.ErrorCodeValidation, "No file uploaded")
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		// a part sent with an empty filename is parsed as a plain value
		if _, ok := r.MultipartForm.Value[formField]; ok {
			return "", perr.New(perr.ErrorCodeValidation, "No file selected")
		}
		return "", perr.Wrap(err, perr.ErrorCodeValidation, "No file uploaded")
	}
	defer file.Close()

	if header.Filename == "" {
		return "", perr.New(perr.ErrorCodeValidation, "No file selected")
	}
	if !allowedFile(header.Filename) {
		return "", perr.New(perr.ErrorCodeValidation, "Invalid file type")
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := storedName(header.Filename)
	dst, err := os.Create(h.uploadPath(name))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	return name, nil
}
