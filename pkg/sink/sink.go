// Package sink implements the places a processed image can be saved to.
package sink

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dixieflatline76/InstaRatio/util/log"
)

// ErrInvalidName is returned for file names that would escape the target directory.
var ErrInvalidName = errors.New("invalid file name")

// Dir saves files into a directory. Existing files are never overwritten; a
// numeric suffix is added instead, the way browsers name repeated downloads.
type Dir struct {
	root string
}

// NewDir creates a sink writing into root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the target directory.
func (d *Dir) Root() string {
	return d.root
}

// DefaultDir returns the user's Downloads directory, or the working directory
// when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// Save writes data under name and returns nil once the file is complete.
func (d *Dir) Save(ctx context.Context, name string, data []byte) error {
	_, err := d.SavePath(ctx, name, data)
	return err
}

// SavePath is Save returning the path actually written.
func (d *Dir) SavePath(ctx context.Context, name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", d.root, err)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = base + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(d.root, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close %s: %w", path, err)
		}
		log.Debugf("Wrote %s", path)
		return path, nil
	}
}

// Response sends files as an HTTP attachment.
type Response struct {
	w http.ResponseWriter
}

// NewResponse creates a sink writing to w.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Save writes the download headers and body.
func (r *Response) Save(_ context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	r.w.Header().Set("Content-Type", ct)
	r.w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	r.w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	r.w.WriteHeader(http.StatusOK)
	_, err := r.w.Write(data)
	return err
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
