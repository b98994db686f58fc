package appindex

import "context"

// DefaultIcon is substituted by renderers for records without an icon
const DefaultIcon = "application-default-icon"

// AppRecord represents a single installed app or bookmark
type AppRecord struct {
	ID     string // Identity, primary index key
	Name   string // Display name, searched by prefix
	Icon   string // Icon reference, empty when absent
	AppURL string // Launch reference
	Slug   string // Marketplace catalog id, set after remote enrichment
}

// IconOrDefault returns the record icon or DefaultIcon when absent
func (r AppRecord) IconOrDefault() string {
	if r.Icon == "" {
		return DefaultIcon
	}
	return r.Icon
}

// AppHandle is a platform reference to one installed app or bookmark
type AppHandle struct {
	Path        string // Platform location (e.g. .desktop file)
	BookmarkURL string // Set for bookmarks
	ManifestURL string // Set for installed apps, may carry a volatile query suffix
}

// CatalogEntry is the remote metadata for one app
type CatalogEntry struct {
	GUID        string   `json:"guid"`
	NativeID    string   `json:"nativeId"`
	Tags        []string `json:"tags,omitempty"`
	Experiences []string `json:"experiences,omitempty"`
}

// Query selects apps either by free text or by experience id.
// Text wins when both are set.
type Query struct {
	Text         string
	ExperienceID string
}

// EventKind tells what changed on the platform
type EventKind int

const (
	EventInstalled EventKind = iota
	EventUninstalled
)

func (k EventKind) String() string {
	switch k {
	case EventInstalled:
		return "installed"
	case EventUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// Event is a platform install/uninstall notification
type Event struct {
	Kind EventKind
	Path string
}

// Platform enumerates installed apps and resolves their display records
type Platform interface {
	// ListInstalledApps returns every installed app and bookmark, collections excluded
	ListInstalledApps(ctx context.Context) ([]AppHandle, error)
	// AppInfo builds the record for one handle
	AppInfo(ctx context.Context, h AppHandle) (AppRecord, error)
}

// Catalog looks up remote tags and experiences for a batch of identities
type Catalog interface {
	AppsInfo(ctx context.Context, guids []string) (map[string]CatalogEntry, error)
}

// KV is the key-value persistence used for the query index.
// Get reports found=false for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}
