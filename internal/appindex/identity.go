package appindex

import "strings"

// Identity is the stable key of an installed app or bookmark
type Identity string

// CleanManifestURL drops the volatile query-string suffix of a manifest URL
func CleanManifestURL(manifestURL string) string {
	before, _, _ := strings.Cut(manifestURL, "?")
	return before
}

// Resolve derives the identity of a platform handle.
// The bookmark URL wins; otherwise the manifest URL is cleaned. When cleaning
// changed the value, original holds the uncleaned manifest URL and cleaned is true.
func Resolve(h AppHandle) (id Identity, original string, cleaned bool) {
	if h.BookmarkURL != "" {
		return Identity(h.BookmarkURL), h.BookmarkURL, false
	}
	c := CleanManifestURL(h.ManifestURL)
	return Identity(c), h.ManifestURL, c != h.ManifestURL
}

// identityMap links cleaned identities back to their original manifest URLs.
// It lives for exactly one catalog round trip.
type identityMap map[Identity]string

// resolveAll returns the guids to send to the catalog and the identity map for the round trip
func resolveAll(handles []AppHandle) ([]string, identityMap) {
	guids := make([]string, 0, len(handles))
	links := make(identityMap)
	for _, h := range handles {
		id, original, cleaned := Resolve(h)
		if id == "" {
			continue
		}
		if cleaned {
			links[id] = original
		}
		guids = append(guids, string(id))
	}
	return guids, links
}

// correlate finds the primary index key a catalog guid refers to.
// Candidates are tried in order: the identity map translation, the guid itself,
// and the guid with its query suffix removed.
func (m identityMap) correlate(guid string, idx *PrimaryIndex) (string, bool) {
	if original, ok := m[Identity(guid)]; ok && idx.Has(original) {
		return original, true
	}
	if idx.Has(guid) {
		return guid, true
	}
	if c := CleanManifestURL(guid); c != guid && idx.Has(c) {
		return c, true
	}
	return "", false
}
