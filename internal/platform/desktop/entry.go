package desktop

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Entry types from the Desktop Entry Specification
const (
	TypeApplication = "Application"
	TypeLink        = "Link"
	TypeDirectory   = "Directory"
)

// ManifestKey carries the app manifest reference inside a .desktop file
const ManifestKey = "X-Manifest-URL"

// CollectionKey marks launcher folders that group other entries
const CollectionKey = "X-Collection"

// ErrMissingFields indicates a .desktop file with neither a name nor a launch target
var ErrMissingFields = errors.New("missing required fields")

// DesktopEntry represents a parsed .desktop file
type DesktopEntry struct {
	Type        string            // Application, Link or Directory
	Name        string            // Default name
	Names       map[string]string // Localized names (locale -> name)
	Icon        string
	Exec        string // Exec command
	URL         string // Target of a Link entry
	ManifestURL string // X-Manifest-URL, may carry a query suffix
	NoDisplay   bool
	Hidden      bool
	Collection  bool   // X-Collection=true
	Path        string // Path to .desktop file
}

// ParseFile parses a single .desktop file
func ParseFile(path string) (*DesktopEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entry := &DesktopEntry{
		Type:  TypeApplication,
		Path:  path,
		Names: make(map[string]string),
	}

	scanner := bufio.NewScanner(file)
	var inDesktopEntry bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDesktopEntry = strings.Trim(line, "[]") == "Desktop Entry"
			continue
		}
		if !inDesktopEntry {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Type":
			entry.Type = value
		case "Name":
			entry.Name = value
		case "Icon":
			entry.Icon = value
		case "Exec":
			entry.Exec = value
		case "URL":
			entry.URL = value
		case ManifestKey:
			entry.ManifestURL = value
		case "NoDisplay":
			entry.NoDisplay = isTrue(value)
		case "Hidden":
			entry.Hidden = isTrue(value)
		case CollectionKey:
			entry.Collection = isTrue(value)
		default:
			// Check for localized Name[locale]
			if strings.HasPrefix(key, "Name[") && strings.HasSuffix(key, "]") {
				entry.Names[key[5:len(key)-1]] = value
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if entry.Name == "" && entry.Exec == "" && entry.URL == "" && entry.ManifestURL == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingFields)
	}

	// Use filename without extension
	if entry.Name == "" {
		entry.Name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}

	return entry, nil
}

// Listed reports whether the entry belongs in the installed apps list.
// Collections, directories and hidden entries are left out.
func (e *DesktopEntry) Listed() bool {
	switch {
	case e.Type == TypeDirectory, e.Collection, e.NoDisplay, e.Hidden:
		return false
	case e.Type == TypeLink:
		return e.URL != ""
	default:
		return true
	}
}

// IsBookmark reports whether the entry is a link rather than an app
func (e *DesktopEntry) IsBookmark() bool {
	return e.Type == TypeLink && e.URL != ""
}

// Manifest returns the manifest reference, falling back to the file location
func (e *DesktopEntry) Manifest() string {
	if e.ManifestURL != "" {
		return e.ManifestURL
	}
	return (&url.URL{Scheme: "file", Path: e.Path}).String()
}

// LocalizedName returns the localized name for the given locale, or default name
func (e *DesktopEntry) LocalizedName(locale string) string {
	if locale == "" {
		return e.Name
	}

	// Drop encoding and modifier (e.g. "de_DE.UTF-8@euro")
	if i := strings.IndexAny(locale, ".@"); i > 0 {
		locale = locale[:i]
	}

	if name, ok := e.Names[locale]; ok {
		return name
	}

	// Try language part (e.g., "en" from "en_US" or "en-US")
	if i := strings.IndexAny(locale, "_-"); i > 0 {
		if name, ok := e.Names[locale[:i]]; ok {
			return name
		}
	}

	return e.Name
}

// LaunchCommand returns Exec with field codes removed and whitespace collapsed
func (e *DesktopEntry) LaunchCommand() string {
	return strings.Join(strings.Fields(removeFieldCodes(e.Exec)), " ")
}

func removeFieldCodes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+1 < len(s) {
			next := s[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					result.WriteByte('%')
				}
				i += 2
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true")
}
