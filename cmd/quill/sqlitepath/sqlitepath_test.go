package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResolveSQLitePath", func() {
	var (
		homeDir string
		cwd     string
	)

	BeforeEach(func() {
		homeDir = GinkgoT().TempDir()
		cwd = GinkgoT().TempDir()

		GinkgoT().Setenv("HOME", homeDir)
		GinkgoT().Setenv("XDG_DATA_HOME", "")
		GinkgoT().Setenv("QUILL_DB", "")
		GinkgoT().Setenv("QUILL_SQLITE", "")

		origCwd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(cwd)).To(Succeed())
		DeferCleanup(func() {
			Expect(os.Chdir(origCwd)).To(Succeed())
		})
	})

	It("returns the override unchanged", func() {
		path, err := ResolveSQLitePath("/data/articles.db", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/data/articles.db"))
	})

	It("prefers QUILL_SQLITE over QUILL_DB", func() {
		GinkgoT().Setenv("QUILL_SQLITE", "/tmp/custom.db")
		GinkgoT().Setenv("QUILL_DB", "/tmp/other.db")

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.db"))
	})

	It("finds the database in the config dir", func() {
		configDir := filepath.Join(cwd, "custom")
		Expect(os.MkdirAll(configDir, 0o755)).To(Succeed())
		dbPath := filepath.Join(configDir, "quill.db")
		Expect(os.WriteFile(dbPath, []byte("test"), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("", configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(dbPath))
	})

	It("resolves ~/.quill/quill.db when present", func() {
		dbPath := filepath.Join(homeDir, ".quill", "quill.db")
		Expect(os.MkdirAll(filepath.Dir(dbPath), 0o755)).To(Succeed())
		Expect(os.WriteFile(dbPath, []byte("test"), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(dbPath))
	})

	It("returns ErrNotFound when nothing exists", func() {
		_, err := ResolveSQLitePath("", "")
		Expect(err).To(MatchError(ErrNotFound))
	})
})

var _ = Describe("DefaultSQLitePath", func() {
	It("creates the config dir and points inside it", func() {
		configDir := filepath.Join(GinkgoT().TempDir(), ".quill")

		path, err := DefaultSQLitePath(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(configDir, "quill.db")))
		Expect(configDir).To(BeADirectory())
	})
})
