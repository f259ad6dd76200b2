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

	initcmder "github.com/papercomputeco/lokal/cmd/lokal/init"
	"github.com/papercomputeco/lokal/pkg/config"
)

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

	run := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	readConfig := func() *config.Config {
		data, err := os.ReadFile(filepath.Join(tmpDir, ".lokal", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := config.ParseConfigTOML(data)
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() {
			Expect(os.Chdir(origDir)).To(Succeed())
		})
	})

	It("creates a .lokal directory with a default config", func() {
		Expect(run()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".lokal"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := readConfig()
		Expect(cfg.LLM.Provider).To(Equal("ollama"))
		Expect(cfg.Memory.Enabled).To(BeTrue())
	})

	It("does not overwrite an existing config without a preset", func() {
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".lokal"), 0o755)).To(Succeed())
		custom := "[llm]\nprovider = \"openai\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, ".lokal", "config.toml"), []byte(custom), 0o600)).To(Succeed())

		Expect(run()).To(Succeed())
		Expect(readConfig().LLM.Provider).To(Equal("openai"))
	})

	Describe("--preset with provider presets", func() {
		It("writes the anthropic preset", func() {
			Expect(run("--preset", "anthropic")).To(Succeed())

			cfg := readConfig()
			Expect(cfg.LLM.Provider).To(Equal("anthropic"))
			Expect(cfg.LLM.Model).NotTo(BeEmpty())
		})

		It("overwrites the config when re-run with a different preset", func() {
			Expect(run("--preset", "openai")).To(Succeed())
			Expect(run("--preset", "ollama")).To(Succeed())
			Expect(readConfig().LLM.Provider).To(Equal("ollama"))
		})

		It("rejects unknown preset names", func() {
			err := run("--preset", "parrot")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))
		})
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes the remote config", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				cfg := config.NewDefaultConfig()
				cfg.LLM.Provider = "anthropic"
				cfg.Memory.PinIdentity = 5
				_ = toml.NewEncoder(w).Encode(cfg)
			}))
			DeferCleanup(srv.Close)

			Expect(run("--preset", srv.URL)).To(Succeed())

			cfg := readConfig()
			Expect(cfg.LLM.Provider).To(Equal("anthropic"))
			Expect(cfg.Memory.PinIdentity).To(Equal(uint(5)))
		})

		It("returns an error for a non-200 response", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			DeferCleanup(srv.Close)

			Expect(run("--preset", srv.URL)).To(MatchError(ContainSubstring("404")))
		})

		It("returns an error for invalid TOML", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is [not toml")
			}))
			DeferCleanup(srv.Close)

			Expect(run("--preset", srv.URL)).To(MatchError(ContainSubstring("parsing preset")))
		})
	})
})
