package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tmpDir string
		rcFile string
	)

	setenv := func(key, value string) {
		old, had := os.LookupEnv(key)
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(func() {
			if had {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		rcFile = filepath.Join(tmpDir, "ade", "appsd.rc")
		setenv("ADE_APPSD_RC", rcFile)
		setenv("ADE_APPSD_DATA_DIR", filepath.Join(tmpDir, "data"))
	})

	Describe("Load", func() {
		It("should apply defaults", func() {
			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Workers()).To(Equal(4))
			Expect(cfg.Store()).To(Equal("bolt"))
			Expect(cfg.LookupTimeout()).To(Equal(5 * time.Second))
			Expect(cfg.CatalogTimeout()).To(Equal(10 * time.Second))
			Expect(cfg.CatalogRPS()).To(Equal(2.0))
			Expect(cfg.MatchCache()).To(Equal(256))
			Expect(cfg.UnixSocket()).To(HaveSuffix("/appsd"))
			Expect(cfg.AppDirs()).To(Equal(DefaultAppDirs()))
		})

		It("should create an empty rc file", func() {
			_, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(rcFile).To(BeAnExistingFile())
		})

		It("should read overrides from the environment", func() {
			setenv("ADE_APPSD_WORKERS", "9")
			setenv("ADE_APPSD_APP_DIRS", "/opt/apps,/srv/apps")
			setenv("ADE_APPSD_STORE", "badger")
			setenv("ADE_APPSD_LOOKUP_TIMEOUT", "250ms")
			setenv("ADE_APPSD_EXPERIENCES", "207:top apps,12:music")
			setenv("ADE_APPSD_SOCK", "/run/ade/appsd.sock")

			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Workers()).To(Equal(9))
			Expect(cfg.AppDirs()).To(Equal([]string{"/opt/apps", "/srv/apps"}))
			Expect(cfg.Store()).To(Equal("badger"))
			Expect(cfg.LookupTimeout()).To(Equal(250 * time.Millisecond))
			Expect(cfg.Experiences()).To(HaveKeyWithValue("207", "top apps"))
			Expect(cfg.UnixSocket()).To(Equal("/run/ade/appsd.sock"))
		})

		It("should reject malformed values", func() {
			setenv("ADE_APPSD_WORKERS", "many")
			_, err := Load()
			Expect(err).To(HaveOccurred())
		})

		It("should append rc directories after the base ones", func() {
			setenv("ADE_APPSD_APP_DIRS", "/opt/apps")
			Expect(os.MkdirAll(filepath.Dir(rcFile), 0750)).To(Succeed())
			Expect(os.WriteFile(rcFile, []byte("# extra\n\n/home/me/apps\n  /mnt/apps  \n"), 0600)).To(Succeed())

			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.AppDirs()).To(Equal([]string{"/opt/apps", "/home/me/apps", "/mnt/apps"}))
		})
	})

	Describe("SocketPath", func() {
		It("should default to a per-user path", func() {
			setenv("ADE_APPSD_SOCK", "")
			path, err := SocketPath()
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(MatchRegexp(`^/tmp/ade-[^/]+/appsd$`))
		})

		It("should expand the environment override", func() {
			home, err := os.UserHomeDir()
			Expect(err).NotTo(HaveOccurred())
			setenv("ADE_APPSD_SOCK", "~/run/appsd")

			path, err := SocketPath()
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(home, "run", "appsd")))
		})

		It("should agree with Load", func() {
			setenv("ADE_APPSD_SOCK", "/run/ade/appsd.sock")
			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(SocketPath()).To(Equal(cfg.UnixSocket()))
		})
	})

	Describe("Watch", func() {
		It("should reload the rc file and notify", func() {
			setenv("ADE_APPSD_APP_DIRS", "/opt/apps")
			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())

			var changes atomic.Int32
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- cfg.Watch(ctx, func() { changes.Add(1) }) }()
			DeferCleanup(func() {
				cancel()
				Eventually(done).Should(Receive(BeNil()))
			})

			Eventually(func() []string {
				Expect(os.WriteFile(rcFile, []byte("/added/apps\n"), 0600)).To(Succeed())
				return cfg.AppDirs()
			}).Should(Equal([]string{"/opt/apps", "/added/apps"}))
			Eventually(changes.Load).Should(BeNumerically(">=", 1))
		})
	})
})
