package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		dir string
		mgr *credentials.Manager
	)

	file := func() string { return filepath.Join(dir, "credentials.toml") }

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		var err error
		mgr, err = credentials.NewManager(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("targets credentials.toml in the lokal directory", func() {
		Expect(mgr.GetTarget()).To(Equal(file()))
	})

	Context("without a credentials file", func() {
		It("loads empty credentials", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).NotTo(BeNil())
			Expect(creds.Providers).To(BeEmpty())
		})

		It("has no keys and no providers", func() {
			key, err := mgr.GetKey("openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())

			providers, err := mgr.ListProviders()
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(BeEmpty())
		})

		It("treats removal as a no-op", func() {
			Expect(mgr.RemoveKey("anthropic")).To(Succeed())
		})
	})

	It("reads a hand-written file", func() {
		Expect(os.WriteFile(file(), []byte("version = 0\n\n[providers.anthropic]\napi_key = \"sk-ant-1\"\n"), 0o600)).To(Succeed())

		key, err := mgr.GetKey("anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-ant-1"))
	})

	It("fails on malformed TOML", func() {
		Expect(os.WriteFile(file(), []byte("[providers.openai\napi_key ="), 0o600)).To(Succeed())

		creds, err := mgr.Load()
		Expect(err).To(MatchError(ContainSubstring("parsing credentials")))
		Expect(creds).To(BeNil())

		_, err = mgr.GetKey("openai")
		Expect(err).To(HaveOccurred())
	})

	It("refuses to save nil credentials", func() {
		Expect(mgr.Save(nil)).NotTo(Succeed())
	})

	Describe("SetKey", func() {
		It("writes the file readable only by its owner", func() {
			Expect(mgr.SetKey("openai", "sk-one")).To(Succeed())

			info, err := os.Stat(file())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("replaces an earlier key and trims whitespace", func() {
			Expect(mgr.SetKey("openai", "sk-one")).To(Succeed())
			Expect(mgr.SetKey("openai", "  sk-two\n")).To(Succeed())

			key, err := mgr.GetKey("openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-two"))
		})

		It("rejects an empty key", func() {
			Expect(mgr.SetKey("openai", "   ")).NotTo(Succeed())
			_, err := os.Stat(file())
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("keeps other providers untouched", func() {
			Expect(mgr.SetKey("openai", "sk-openai")).To(Succeed())
			Expect(mgr.SetKey("anthropic", "sk-anthropic")).To(Succeed())
			Expect(mgr.RemoveKey("openai")).To(Succeed())

			providers, err := mgr.ListProviders()
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(Equal([]string{"anthropic"}))

			key, err := mgr.GetKey("anthropic")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-anthropic"))
		})
	})

	It("lists providers sorted by name", func() {
		Expect(mgr.SetKey("openai", "sk-2")).To(Succeed())
		Expect(mgr.SetKey("anthropic", "sk-1")).To(Succeed())

		providers, err := mgr.ListProviders()
		Expect(err).NotTo(HaveOccurred())
		Expect(providers).To(Equal([]string{"anthropic", "openai"}))
	})
})

var _ = Describe("provider helpers", func() {
	DescribeTable("EnvVarForProvider",
		func(provider, env string) {
			Expect(credentials.EnvVarForProvider(provider)).To(Equal(env))
		},
		Entry("openai", "openai", "OPENAI_API_KEY"),
		Entry("anthropic", "anthropic", "ANTHROPIC_API_KEY"),
		Entry("ollama needs no key", "ollama", ""),
	)

	It("supports only providers that take a key", func() {
		Expect(credentials.SupportedProviders()).To(ConsistOf("anthropic", "openai"))
		Expect(credentials.IsSupportedProvider("openai")).To(BeTrue())
		Expect(credentials.IsSupportedProvider("ollama")).To(BeFalse())
	})

	DescribeTable("Mask",
		func(key, masked string) {
			Expect(credentials.Mask(key)).To(Equal(masked))
		},
		Entry("long key", "sk-abcdef1234", "*********1234"),
		Entry("four characters", "abcd", "****"),
		Entry("empty", "", ""),
	)
})
