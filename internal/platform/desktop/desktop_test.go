package desktop

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-appsd/internal/appindex"
)

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}

func writeDesktop(dir, name, body string) string {
	path := filepath.Join(dir, name)
	Expect(os.MkdirAll(filepath.Dir(path), 0750)).To(Succeed())
	Expect(os.WriteFile(path, []byte("[Desktop Entry]\n"+body), 0600)).To(Succeed())
	return path
}

var _ = Describe("Entry", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should parse app fields", func() {
		path := writeDesktop(dir, "maps.desktop", `Type=Application
Name=Maps
Name[de]=Karten
Icon=maps
Exec=maps --open %U
X-Manifest-URL=app://maps/manifest.webapp?v=3

[Desktop Action New]
Name=Ignored
`)
		e, err := ParseFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Name).To(Equal("Maps"))
		Expect(e.Icon).To(Equal("maps"))
		Expect(e.ManifestURL).To(Equal("app://maps/manifest.webapp?v=3"))
		Expect(e.LaunchCommand()).To(Equal("maps --open"))
		Expect(e.LocalizedName("de_DE.UTF-8")).To(Equal("Karten"))
		Expect(e.LocalizedName("fr")).To(Equal("Maps"))
		Expect(e.Listed()).To(BeTrue())
		Expect(e.IsBookmark()).To(BeFalse())
	})

	It("should fall back to the file name and location", func() {
		path := writeDesktop(dir, "tool.desktop", "Exec=tool\n")
		e, err := ParseFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Name).To(Equal("tool"))
		Expect(e.Manifest()).To(Equal(fileURL(path)))
	})

	It("should reject files without a name or target", func() {
		path := writeDesktop(dir, "empty.desktop", "Icon=x\n")
		_, err := ParseFile(path)
		Expect(err).To(MatchError(ErrMissingFields))
	})

	DescribeTable("listing",
		func(body string, listed bool) {
			e, err := ParseFile(writeDesktop(dir, "e.desktop", "Name=E\n"+body))
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Listed()).To(Equal(listed))
		},
		Entry("application", "Type=Application\n", true),
		Entry("bookmark", "Type=Link\nURL=https://example.org\n", true),
		Entry("link without target", "Type=Link\n", false),
		Entry("directory", "Type=Directory\n", false),
		Entry("collection", "X-Collection=true\n", false),
		Entry("no display", "NoDisplay=True\n", false),
		Entry("hidden", "Hidden=true\n", false),
	)
})

var _ = Describe("Source", func() {
	var (
		system, user string
		src          *Source
		ctx          context.Context
	)

	BeforeEach(func() {
		system = GinkgoT().TempDir()
		user = GinkgoT().TempDir()
		ctx = context.Background()
		src = NewSource(func() []string {
			return []string{system, filepath.Join(system, "missing"), user}
		})
	})

	It("should list apps and bookmarks, excluding collections", func() {
		writeDesktop(system, "maps.desktop", "Name=Maps\nX-Manifest-URL=app://maps/manifest.webapp?v=1\n")
		writeDesktop(system, "sub/notes.desktop", "Name=Notes\nExec=notes\n")
		writeDesktop(system, "games.desktop", "Name=Games\nX-Collection=true\n")
		writeDesktop(system, "readme.txt", "Name=Nope\n")
		writeDesktop(user, "news.desktop", "Type=Link\nName=News\nURL=https://news.example\n")

		handles, err := src.ListInstalledApps(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(handles).To(ConsistOf(
			appindex.AppHandle{Path: filepath.Join(system, "maps.desktop"), ManifestURL: "app://maps/manifest.webapp?v=1"},
			appindex.AppHandle{Path: filepath.Join(system, "sub/notes.desktop"), ManifestURL: fileURL(filepath.Join(system, "sub/notes.desktop"))},
			appindex.AppHandle{Path: filepath.Join(user, "news.desktop"), BookmarkURL: "https://news.example"},
		))
	})

	It("should let later directories override earlier ones", func() {
		writeDesktop(system, "maps.desktop", "Name=Maps\nX-Manifest-URL=app://maps\n")
		writeDesktop(system, "mail.desktop", "Name=Mail\nX-Manifest-URL=app://mail\n")
		writeDesktop(user, "maps.desktop", "Name=My Maps\nX-Manifest-URL=app://mymaps\n")
		writeDesktop(user, "mail.desktop", "Name=Mail\nNoDisplay=true\n")

		handles, err := src.ListInstalledApps(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(handles).To(Equal([]appindex.AppHandle{
			{Path: filepath.Join(user, "maps.desktop"), ManifestURL: "app://mymaps"},
		}))
	})

	It("should stop on a cancelled context", func() {
		writeDesktop(system, "maps.desktop", "Name=Maps\n")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := src.ListInstalledApps(cctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	Describe("AppInfo", func() {
		It("should key apps by their cleaned manifest URL", func() {
			path := writeDesktop(system, "maps.desktop", "Name=Maps\nIcon=maps\nExec=maps %u\nX-Manifest-URL=app://maps?v=1\n")
			rec, err := src.AppInfo(ctx, appindex.AppHandle{Path: path, ManifestURL: "app://maps?v=1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).To(Equal(appindex.AppRecord{ID: "app://maps", Name: "Maps", Icon: "maps", AppURL: "maps"}))
		})

		It("should launch apps without Exec through their manifest", func() {
			path := writeDesktop(system, "web.desktop", "Name=Web\nX-Manifest-URL=https://x/app.webapp?f=1\n")
			rec, err := src.AppInfo(ctx, appindex.AppHandle{Path: path})
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.ID).To(Equal("https://x/app.webapp"))
			Expect(rec.AppURL).To(Equal("https://x/app.webapp?f=1"))
		})

		It("should key bookmarks by their URL", func() {
			path := writeDesktop(user, "news.desktop", "Type=Link\nName=News\nURL=https://news.example\n")
			rec, err := src.AppInfo(ctx, appindex.AppHandle{Path: path, BookmarkURL: "https://news.example"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.ID).To(Equal("https://news.example"))
			Expect(rec.AppURL).To(Equal("https://news.example"))
			Expect(rec.IconOrDefault()).To(Equal(appindex.DefaultIcon))
		})

		It("should use the localized name", func() {
			src = NewSource(func() []string { return []string{system} }, WithLocale("de_DE"))
			path := writeDesktop(system, "maps.desktop", "Name=Maps\nName[de]=Karten\n")
			rec, err := src.AppInfo(ctx, appindex.AppHandle{Path: path})
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Name).To(Equal("Karten"))
		})

		It("should fail for removed or hidden files", func() {
			_, err := src.AppInfo(ctx, appindex.AppHandle{Path: filepath.Join(system, "gone.desktop")})
			Expect(err).To(HaveOccurred())

			path := writeDesktop(system, "hidden.desktop", "Name=Hidden\nNoDisplay=true\n")
			_, err = src.AppInfo(ctx, appindex.AppHandle{Path: path})
			Expect(err).To(MatchError(ErrNotListed))
		})
	})
})

var _ = Describe("Watcher", func() {
	var (
		dir    string
		w      *Watcher
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		var err error
		w, err = NewWatcher(nil)
		Expect(err).NotTo(HaveOccurred())
		w.Watch([]string{dir, filepath.Join(dir, "missing")})

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should report installs and uninstalls of desktop files", func() {
		path := writeDesktop(dir, "maps.desktop", "Name=Maps\n")
		Eventually(w.Events(), 2*time.Second).Should(Receive(Equal(appindex.Event{Kind: appindex.EventInstalled, Path: path})))

		Expect(os.Remove(path)).To(Succeed())
		Eventually(w.Events(), 2*time.Second).Should(Receive(Equal(appindex.Event{Kind: appindex.EventUninstalled, Path: path})))
	})

	It("should report desktop files in existing subdirectories", func() {
		other := GinkgoT().TempDir()
		sub := filepath.Join(other, "kde4")
		Expect(os.Mkdir(sub, 0750)).To(Succeed())
		w.Watch([]string{dir, other})

		path := writeDesktop(sub, "konsole.desktop", "Name=Konsole\n")
		Eventually(w.Events(), 2*time.Second).Should(Receive(Equal(appindex.Event{Kind: appindex.EventInstalled, Path: path})))
	})

	It("should follow subdirectories created after watching started", func() {
		sub := filepath.Join(dir, "games", "arcade")
		path := writeDesktop(sub, "pong.desktop", "Name=Pong\n")
		Eventually(w.Events(), 2*time.Second).Should(Receive(Equal(appindex.Event{Kind: appindex.EventInstalled, Path: path})))

		Expect(os.Remove(path)).To(Succeed())
		Eventually(w.Events(), 2*time.Second).Should(Receive(Equal(appindex.Event{Kind: appindex.EventUninstalled, Path: path})))
	})

	It("should stop watching a dropped directory tree", func() {
		other := GinkgoT().TempDir()
		Expect(os.Mkdir(filepath.Join(other, "kde4"), 0750)).To(Succeed())
		w.Watch([]string{dir, other})
		w.Watch([]string{dir})

		writeDesktop(filepath.Join(other, "kde4"), "konsole.desktop", "Name=Konsole\n")
		Consistently(w.Events(), 200*time.Millisecond).ShouldNot(Receive())
	})

	It("should ignore other files", func() {
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600)).To(Succeed())
		Consistently(w.Events(), 200*time.Millisecond).ShouldNot(Receive())
	})
})
