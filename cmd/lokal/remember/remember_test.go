package remembercmder_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	remembercmder "github.com/papercomputeco/lokal/cmd/lokal/remember"
	"github.com/papercomputeco/lokal/pkg/dotdir"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/facts/sqlite"
)

var _ = Describe("Remember command", func() {
	var dir string

	run := func(args ...string) (string, error) {
		root := &cobra.Command{Use: "lokal", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().Bool("debug", false, "")
		root.PersistentFlags().String("config-dir", dir, "")
		root.AddCommand(remembercmder.NewRememberCmd())

		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"remember"}, args...))
		err := root.Execute()
		return out.String(), err
	}

	contents := func() []string {
		store, err := sqlite.NewStore(context.Background(), sqlite.Config{Path: dir + "/facts.db"})
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		list, err := store.List(context.Background(), facts.ListOptions{})
		Expect(err).NotTo(HaveOccurred())

		out := make([]string, 0, len(list))
		for _, f := range list {
			out = append(out, f.Content)
		}
		return out
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv(dotdir.HomeEnv, "")
		GinkgoT().Setenv("LOKAL_DB", "")
		GinkgoT().Setenv("LOKAL_STORAGE_DRIVER", "")
	})

	It("stores a plain statement", func() {
		out, err := run("user", "is", "allergic", "to", "peanuts")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Remembered"))
		Expect(contents()).To(ConsistOf("user is allergic to peanuts"))
	})

	It("applies tagged operations in order", func() {
		_, err := run("user lives in Porto")
		Expect(err).NotTo(HaveOccurred())

		out, err := run("UPDATE: user lives in Porto -> user lives in Lisbon\nADD: user is vegetarian")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Updated"))
		Expect(contents()).To(ConsistOf("user lives in Lisbon", "user is vegetarian"))
	})

	It("refuses transient states", func() {
		out, err := run("user is tired today")
		Expect(err).To(MatchError("nothing to remember"))
		Expect(out).To(ContainSubstring("Not remembered"))
	})

	It("stores transient states with --force", func() {
		_, err := run("--force", "user is tired today")
		Expect(err).NotTo(HaveOccurred())
		Expect(contents()).To(ConsistOf("user is tired today"))
	})

	It("fails when nothing applies", func() {
		out, err := run("REMOVE: user owns a yacht")
		Expect(err).To(MatchError("no changes applied"))
		Expect(out).To(ContainSubstring("not found"))
	})
})
