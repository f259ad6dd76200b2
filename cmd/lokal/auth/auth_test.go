package authcmder_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/lokal/cmd/lokal/auth"
	"github.com/papercomputeco/lokal/pkg/credentials"
)

var _ = Describe("Auth Command", func() {
	var (
		dir string
		out *bytes.Buffer
	)

	newCmd := func(stdin string, args ...string) *cobra.Command {
		cmd := authcmder.NewAuthCmd()
		cmd.Flags().String("config-dir", dir, "")
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetOut(out)
		cmd.SetArgs(args)
		return cmd
	}

	storedKey := func(provider string) string {
		mgr, err := credentials.NewManager(dir)
		Expect(err).NotTo(HaveOccurred())
		key, err := mgr.GetKey(provider)
		Expect(err).NotTo(HaveOccurred())
		return key
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth [provider]"))
			Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
		})
	})

	Describe("storing a key", func() {
		It("reads the key from piped input", func() {
			Expect(newCmd("sk-ant-secret-1234\n", "anthropic").Execute()).To(Succeed())
			Expect(storedKey("anthropic")).To(Equal("sk-ant-secret-1234"))
			Expect(out.String()).To(ContainSubstring("1234"))
			Expect(out.String()).NotTo(ContainSubstring("secret"))
		})

		It("normalizes the provider name", func() {
			Expect(newCmd("sk-key\n", " OpenAI ").Execute()).To(Succeed())
			Expect(storedKey("openai")).To(Equal("sk-key"))
		})

		It("rejects an empty key", func() {
			err := newCmd("   \n", "openai").Execute()
			Expect(err).To(MatchError(ContainSubstring("cannot be empty")))
		})

		It("fails without input", func() {
			err := newCmd("", "openai").Execute()
			Expect(err).To(MatchError(ContainSubstring("no input")))
		})
	})

	Describe("--list flag", func() {
		It("shows no credentials when none stored", func() {
			Expect(newCmd("", "--list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No stored credentials"))
		})

		It("lists stored credentials masked", func() {
			Expect(newCmd("sk-openai-abcdef\n", "openai").Execute()).To(Succeed())
			out.Reset()

			Expect(newCmd("", "--list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("openai"))
			Expect(out.String()).To(ContainSubstring("cdef"))
			Expect(out.String()).NotTo(ContainSubstring("sk-openai"))
		})
	})

	Describe("--remove flag", func() {
		It("removes stored credentials", func() {
			Expect(newCmd("sk-openai\n", "openai").Execute()).To(Succeed())
			Expect(newCmd("", "--remove", "openai").Execute()).To(Succeed())
			Expect(storedKey("openai")).To(BeEmpty())
		})
	})

	Describe("provider argument validation", func() {
		It("returns error when no provider given", func() {
			err := newCmd("").Execute()
			Expect(err).To(MatchError(ContainSubstring("provider argument required")))
		})

		It("returns error for unsupported provider", func() {
			err := newCmd("key\n", "ollama").Execute()
			Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
		})
	})

	Describe("shell completion", func() {
		It("provides provider name completions", func() {
			cmd := authcmder.NewAuthCmd()
			completions, _ := cmd.ValidArgsFunction(cmd, []string{}, "")
			Expect(completions).To(ConsistOf("anthropic", "openai"))
		})

		It("provides no completions after first arg", func() {
			cmd := authcmder.NewAuthCmd()
			completions, _ := cmd.ValidArgsFunction(cmd, []string{"openai"}, "")
			Expect(completions).To(BeEmpty())
		})
	})
})
