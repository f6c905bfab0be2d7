// Package files stores text artifacts written by agents, one directory
// per event.
package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ShayCichocki/gala/internal/tools"
)

// Writer persists an event-scoped artifact. Filenames arrive sanitized.
type Writer interface {
	Write(ctx context.Context, eventID, filename, content string) error
}

// FileInfo describes one stored artifact.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// DiskWriter writes artifacts under Root/<eventID>/.
type DiskWriter struct {
	Root string
}

var _ Writer = (*DiskWriter)(nil)

// NewDiskWriter creates a DiskWriter rooted at dir.
func NewDiskWriter(dir string) *DiskWriter {
	return &DiskWriter{Root: dir}
}

// Write replaces the artifact atomically: content goes to a temporary file
// in the same directory which is then renamed into place.
func (w *DiskWriter) Write(ctx context.Context, eventID, filename, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := w.eventDir(eventID)
	if err != nil {
		return err
	}
	if filename == "" || filename != filepath.Base(filename) || filename[0] == '.' {
		return fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create event dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filename+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filename, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, filename)); err != nil {
		return fmt.Errorf("rename %s: %w", filename, err)
	}
	return nil
}

// List returns the event's artifacts sorted by name. An event with no
// artifacts yields an empty list.
func (w *DiskWriter) List(eventID string) ([]FileInfo, error) {
	dir, err := w.eventDir(eventID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list event files: %w", err)
	}

	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns one artifact's content.
func (w *DiskWriter) Read(eventID, filename string) (string, error) {
	dir, err := w.eventDir(eventID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, tools.SanitizeFilename(filename)))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	return string(data), nil
}

func (w *DiskWriter) eventDir(eventID string) (string, error) {
	if eventID == "" || eventID != filepath.Base(eventID) || eventID == "." || eventID == ".." {
		return "", fmt.Errorf("invalid event id %q", eventID)
	}
	return filepath.Join(w.Root, eventID), nil
}
