package provider_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/credentials"
	"github.com/papercomputeco/lokal/pkg/llm/provider"
	"github.com/papercomputeco/lokal/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/lokal/pkg/llm/provider/ollama"
	"github.com/papercomputeco/lokal/pkg/llm/provider/openai"
)

var _ = Describe("New", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	It("defaults to ollama", func() {
		g, err := provider.New(provider.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeAssignableToTypeOf(&ollama.Client{}))
	})

	It("creates an openai client with an explicit key", func() {
		g, err := provider.New(provider.Config{Provider: "OpenAI", APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeAssignableToTypeOf(&openai.Client{}))
	})

	It("creates an anthropic client from the environment", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "env-key")
		g, err := provider.New(provider.Config{Provider: "anthropic"})
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeAssignableToTypeOf(&anthropic.Client{}))
	})

	It("falls back to ollama when no key is available", func() {
		g, err := provider.New(provider.Config{Provider: "openai"})
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeAssignableToTypeOf(&ollama.Client{}))
	})

	It("returns an error for unsupported providers", func() {
		_, err := provider.New(provider.Config{Provider: "bedrock"})
		Expect(err).To(MatchError(ContainSubstring("unknown provider type")))
	})
})

var _ = Describe("ResolveAPIKey", func() {
	var mgr *credentials.Manager

	BeforeEach(func() {
		var err error
		mgr, err = credentials.NewManager(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetKey("openai", "stored-key")).To(Succeed())
		GinkgoT().Setenv("OPENAI_API_KEY", "env-key")
	})

	It("prefers the explicit key", func() {
		Expect(provider.ResolveAPIKey("openai", "explicit", mgr)).To(Equal("explicit"))
	})

	It("uses stored credentials before the environment", func() {
		Expect(provider.ResolveAPIKey("openai", "", mgr)).To(Equal("stored-key"))
	})

	It("falls back to the environment", func() {
		Expect(provider.ResolveAPIKey("openai", "", nil)).To(Equal("env-key"))
	})

	It("returns empty for providers without keys", func() {
		Expect(provider.ResolveAPIKey("ollama", "", nil)).To(BeEmpty())
	})
})
