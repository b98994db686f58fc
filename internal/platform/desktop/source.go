// Package desktop exposes the apps and bookmarks installed as freedesktop
// .desktop files to the installed apps index.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xADE/ade-appsd/internal/appindex"
)

// ErrNotListed indicates a handle whose .desktop file is now hidden or a collection
var ErrNotListed = errors.New("entry is not a listed app")

// Source implements appindex.Platform over a set of application directories
type Source struct {
	dirs   func() []string
	locale string
	logger *slog.Logger
}

// SourceOption configures a Source
type SourceOption func(*Source)

// WithLocale selects localized names (e.g. "de_DE")
func WithLocale(locale string) SourceOption {
	return func(s *Source) {
		s.locale = locale
	}
}

// WithSourceLogger sets the logger used for skipped files
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource creates a Source. dirs is consulted on every enumeration so
// directory changes apply to the next rebuild.
func NewSource(dirs func() []string, opts ...SourceOption) *Source {
	s := &Source{
		dirs:   dirs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListInstalledApps scans every directory for listed .desktop files. An entry
// in a later directory replaces an earlier one with the same desktop file id.
func (s *Source) ListInstalledApps(ctx context.Context) ([]appindex.AppHandle, error) {
	var (
		handles []appindex.AppHandle
		slot    = make(map[string]int)
	)

	for _, dir := range s.dirs() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if d != nil && d.IsDir() && path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(path, ".desktop") {
				return nil
			}

			entry, err := ParseFile(path)
			if err != nil {
				// Skip invalid files
				s.logger.Debug("skipping desktop file", "path", path, "error", err)
				return nil
			}

			id := fileID(dir, path)
			if !entry.Listed() {
				// A hidden override removes the entry it shadows
				if i, ok := slot[id]; ok {
					handles[i] = appindex.AppHandle{}
				}
				return nil
			}

			h := handleFor(entry)
			if i, ok := slot[id]; ok {
				handles[i] = h
				return nil
			}
			slot[id] = len(handles)
			handles = append(handles, h)
			return nil
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to scan application directory", "dir", dir, "error", err)
		}
	}

	out := handles[:0]
	for _, h := range handles {
		if h.Path != "" {
			out = append(out, h)
		}
	}
	return out, nil
}

// AppInfo re-reads the .desktop file behind h and builds its record, keyed
// by the resolved identity
func (s *Source) AppInfo(ctx context.Context, h appindex.AppHandle) (appindex.AppRecord, error) {
	if err := ctx.Err(); err != nil {
		return appindex.AppRecord{}, err
	}

	entry, err := ParseFile(h.Path)
	if err != nil {
		return appindex.AppRecord{}, fmt.Errorf("failed to read %s: %w", h.Path, err)
	}
	if !entry.Listed() {
		return appindex.AppRecord{}, fmt.Errorf("%s: %w", h.Path, ErrNotListed)
	}

	h = handleFor(entry)
	id, _, _ := appindex.Resolve(h)
	rec := appindex.AppRecord{
		ID:   string(id),
		Name: entry.LocalizedName(s.locale),
		Icon: entry.Icon,
	}
	switch {
	case h.BookmarkURL != "":
		rec.AppURL = h.BookmarkURL
	case entry.Exec != "":
		rec.AppURL = entry.LaunchCommand()
	default:
		rec.AppURL = h.ManifestURL
	}
	return rec, nil
}

func handleFor(e *DesktopEntry) appindex.AppHandle {
	if e.IsBookmark() {
		return appindex.AppHandle{Path: e.Path, BookmarkURL: e.URL}
	}
	return appindex.AppHandle{Path: e.Path, ManifestURL: e.Manifest()}
}

// fileID is the desktop file id: the path below the application directory
// with separators replaced by dashes.
func fileID(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return strings.ReplaceAll(rel, string(os.PathSeparator), "-")
}
