package desktop

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-appsd/internal/appindex"
)

type catalogFunc func(guids []string) map[string]appindex.CatalogEntry

func (f catalogFunc) AppsInfo(_ context.Context, guids []string) (map[string]appindex.CatalogEntry, error) {
	return f(guids), nil
}

type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

var _ = Describe("Source as an index platform", func() {
	It("should index desktop files and correlate catalog entries by uncleaned guid", func() {
		dir := GinkgoT().TempDir()
		writeDesktop(dir, "radio.desktop", "Name=Radio FM\nX-Manifest-URL=https://x/radio.webapp?f=1\n")
		writeDesktop(dir, "player.desktop", "Name=Music Player\nX-Manifest-URL=https://x/player.webapp\n")
		writeDesktop(dir, "folder.desktop", "Name=Media\nX-Collection=true\n")

		var requested []string
		remote := catalogFunc(func(guids []string) map[string]appindex.CatalogEntry {
			requested = guids
			return map[string]appindex.CatalogEntry{
				"https://x/radio.webapp?f=1": {NativeID: "radio-1"},
				"https://x/player.webapp":    {NativeID: "player-9", Tags: []string{"Radio"}},
			}
		})

		svc, err := appindex.New(NewSource(func() []string { return []string{dir} }), remote, &mapKV{data: map[string][]byte{}})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(svc.Close)
		Expect(svc.Init(context.Background())).To(Succeed())

		Expect(requested).To(ConsistOf("https://x/radio.webapp", "https://x/player.webapp"))
		Expect(svc.Slugs()).To(ConsistOf("radio-1", "player-9"))

		names := func(apps []appindex.AppRecord) []string {
			out := make([]string, len(apps))
			for i, a := range apps {
				out[i] = a.Name
			}
			return out
		}
		Expect(names(svc.MatchingApps(appindex.Query{Text: "rad"}))).To(Equal([]string{"Radio FM"}))
		Expect(names(svc.MatchingApps(appindex.Query{Text: "radio"}))).To(ConsistOf("Radio FM", "Music Player"))
	})
})
