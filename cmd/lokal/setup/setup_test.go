package setup_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/config"
	"github.com/papercomputeco/lokal/pkg/dotdir"
	"github.com/papercomputeco/lokal/pkg/eventstream/nop"
	"github.com/papercomputeco/lokal/pkg/facts/inmemory"
	"github.com/papercomputeco/lokal/pkg/logger"
	"github.com/papercomputeco/lokal/pkg/memory"
)

var _ = Describe("setup", func() {
	var (
		ctx context.Context
		dir string
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv(dotdir.HomeEnv, "")
		GinkgoT().Setenv("LOKAL_DB", "")
		cfg = config.NewDefaultConfig()
	})

	Describe("LoadConfig", func() {
		var (
			cmd      *cobra.Command
			provider string
		)

		BeforeEach(func() {
			cmd = &cobra.Command{Use: "test"}
			cmd.Flags().String("config-dir", dir, "")
			config.AddStringFlag(cmd, config.Registry, config.FlagProvider, &provider)
		})

		It("returns the defaults without a config file", func() {
			got, err := setup.LoadConfig(cmd, config.FlagProvider)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LLM.Provider).To(Equal("ollama"))
			Expect(got.Memory.Enabled).To(BeTrue())
		})

		It("reads config.toml from the config dir", func() {
			data := "[llm]\nprovider = \"anthropic\"\n\n[memory]\nenabled = false\n"
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			got, err := setup.LoadConfig(cmd, config.FlagProvider)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LLM.Provider).To(Equal("anthropic"))
			Expect(got.Memory.Enabled).To(BeFalse())
		})

		It("lets flags win over the config file", func() {
			data := "[llm]\nprovider = \"anthropic\"\n"
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0o600)).To(Succeed())
			Expect(cmd.Flags().Set("provider", "openai")).To(Succeed())

			got, err := setup.LoadConfig(cmd, config.FlagProvider)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LLM.Provider).To(Equal("openai"))
		})
	})

	Describe("OpenStore", func() {
		It("opens an in-memory store", func() {
			cfg.Storage.Driver = setup.DriverMemory

			store, err := setup.OpenStore(ctx, cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(store).To(BeAssignableToTypeOf(&inmemory.Store{}))
		})

		It("opens facts.db in the config dir by default", func() {
			store, err := setup.OpenStore(ctx, cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(store.Close)

			_, err = store.Insert(ctx, "user likes tea", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(dir, "facts.db")).To(BeAnExistingFile())
		})

		It("requires a DSN for postgres", func() {
			cfg.Storage.Driver = setup.DriverPostgres

			_, err := setup.OpenStore(ctx, cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
		})

		It("rejects an unknown driver", func() {
			cfg.Storage.Driver = "etcd"

			_, err := setup.OpenStore(ctx, cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))
		})
	})

	Describe("NewGenerator", func() {
		It("builds the default ollama client", func() {
			gen, err := setup.NewGenerator(cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(gen).NotTo(BeNil())
		})

		It("rejects an invalid timeout", func() {
			cfg.LLM.Timeout = "soon"

			_, err := setup.NewGenerator(cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("llm.timeout")))
		})

		It("rejects an unknown provider", func() {
			cfg.LLM.Provider = "parrot"

			_, err := setup.NewGenerator(cfg, dir, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewPublisher", func() {
		It("defaults to the no-op publisher", func() {
			pub, err := setup.NewPublisher(cfg, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub).To(BeAssignableToTypeOf(&nop.Publisher{}))
		})

		It("requires brokers for kafka", func() {
			cfg.Events.Provider = "kafka"

			_, err := setup.NewPublisher(cfg, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("builds a kafka publisher", func() {
			cfg.Events.Provider = "kafka"
			cfg.Events.Brokers = "localhost:9092"

			pub, err := setup.NewPublisher(cfg, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub.Close()).To(Succeed())
		})

		It("rejects an unknown provider", func() {
			cfg.Events.Provider = "carrier-pigeon"

			_, err := setup.NewPublisher(cfg, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewManager", func() {
		It("reports memory as not configured when disabled", func() {
			cfg.Memory.Enabled = false

			_, err := setup.NewManager(cfg, inmemory.NewStore(), nil, nil, logger.Nop())
			Expect(err).To(MatchError(memory.ErrNotConfigured))
		})

		It("rejects an invalid extraction timeout", func() {
			cfg.Memory.ExtractionTimeout = "-"
			gen, err := setup.NewGenerator(cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			_, err = setup.NewManager(cfg, inmemory.NewStore(), gen, nil, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("memory.extraction_timeout")))
		})

		It("starts a manager", func() {
			gen, err := setup.NewGenerator(cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			mgr, err := setup.NewManager(cfg, inmemory.NewStore(), gen, nop.NewPublisher(), logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.Close(ctx)).To(Succeed())
		})
	})
})
