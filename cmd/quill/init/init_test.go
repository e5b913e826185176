package initcmder_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/quill/cmd/quill/init"
	"github.com/papercomputeco/quill/pkg/config"
)

func loadConfig(dir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(dir, ".quill", "config.toml"))
	Expect(err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	Expect(toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}

func runInit(args ...string) (string, error) {
	cmd := initcmder.NewInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() {
			Expect(os.Chdir(origDir)).To(Succeed())
		})
	})

	It("creates a .quill directory with a default config", func() {
		out, err := runInit()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Initialized .quill directory"))
		Expect(filepath.Join(tmpDir, ".quill")).To(BeADirectory())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		Expect(cfg.Embedding.Model).To(Equal("embeddinggemma"))
		Expect(cfg.API.Listen).To(Equal(":8081"))
	})

	It("keeps an existing config.toml", func() {
		dir := filepath.Join(tmpDir, ".quill")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[embedding]\nmodel = \"custom\"\n"), 0o600)).To(Succeed())

		out, err := runInit()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Already initialized"))
		Expect(loadConfig(tmpDir).Embedding.Model).To(Equal("custom"))
	})

	Describe("--preset", func() {
		It("writes the voyage preset", func() {
			_, err := runInit("--preset", "voyage")
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Embedding.Provider).To(Equal("voyage"))
			Expect(cfg.Embedding.Model).To(Equal("voyage-3.5"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1024)))
		})

		It("overwrites an existing config", func() {
			_, err := runInit("--preset", "voyage")
			Expect(err).NotTo(HaveOccurred())

			_, err = runInit("--preset", "server")
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Embedding.Provider).To(Equal("ollama"))
			Expect(cfg.Storage.Provider).To(Equal("postgres"))
			Expect(cfg.VectorStore.Provider).To(Equal("qdrant"))
			Expect(cfg.EventStream.Provider).To(Equal("kafka"))
		})

		It("rejects unknown preset names", func() {
			_, err := runInit("--preset", "invalid")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))
		})

		It("fetches a remote config.toml", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "[embedding]\nmodel = \"remote-model\"\ndimensions = 1536\n")
			}))
			DeferCleanup(server.Close)

			_, err := runInit("--preset", server.URL)
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Embedding.Model).To(Equal("remote-model"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
		})

		It("reports non-200 responses", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			DeferCleanup(server.Close)

			_, err := runInit("--preset", server.URL)
			Expect(err).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("reports invalid TOML", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			DeferCleanup(server.Close)

			_, err := runInit("--preset", server.URL)
			Expect(err).To(MatchError(ContainSubstring("parsing")))
		})
	})
})
