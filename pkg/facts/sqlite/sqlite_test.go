package sqlite_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/facts/factstest"
	"github.com/papercomputeco/lokal/pkg/facts/sqlite"
)

var _ = Describe("Store", func() {
	Context("in memory", func() {
		factstest.DescribeStore(func(opts ...facts.Option) facts.Store {
			s, err := sqlite.NewStore(context.Background(), sqlite.Config{Path: sqlite.MemoryPath}, opts...)
			Expect(err).NotTo(HaveOccurred())
			return s
		})
	})

	Context("on disk", func() {
		factstest.DescribeStore(func(opts ...facts.Option) facts.Store {
			path := filepath.Join(GinkgoT().TempDir(), "facts.db")
			s, err := sqlite.NewStore(context.Background(), sqlite.Config{Path: path}, opts...)
			Expect(err).NotTo(HaveOccurred())
			return s
		})
	})

	Describe("NewStore", func() {
		var ctx context.Context

		BeforeEach(func() {
			ctx = context.Background()
		})

		It("requires a path", func() {
			_, err := sqlite.NewStore(ctx, sqlite.Config{})
			Expect(err).To(HaveOccurred())
		})

		It("persists facts across reopen", func() {
			path := filepath.Join(GinkgoT().TempDir(), "facts.db")

			s, err := sqlite.NewStore(ctx, sqlite.Config{Path: path})
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Insert(ctx, "user is named Alex", facts.CategoryIdentity)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			s, err = sqlite.NewStore(ctx, sqlite.Config{Path: path})
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			found, err := s.Search(ctx, "Alex", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].Category).To(Equal(facts.CategoryIdentity))
		})

		It("serializes overlapping batches from separate handles", func() {
			path := filepath.Join(GinkgoT().TempDir(), "facts.db")

			const writers, batches = 4, 50
			stores := make([]*sqlite.Store, writers)
			for i := range stores {
				s, err := sqlite.NewStore(ctx, sqlite.Config{Path: path})
				Expect(err).NotTo(HaveOccurred())
				defer s.Close()
				stores[i] = s
			}

			var wg sync.WaitGroup
			errs := make(chan error, writers*batches)
			for w, s := range stores {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for b := range batches {
						_, err := s.Apply(ctx, []facts.Change{
							{Op: facts.OpAdd, Content: fmt.Sprintf("writer %d wrote batch %d first", w, b)},
							{Op: facts.OpAdd, Content: fmt.Sprintf("writer %d wrote batch %d second", w, b)},
						})
						if err != nil {
							errs <- err
						}
					}
				}()
			}
			wg.Wait()
			close(errs)

			Expect(errs).To(BeEmpty())
			n, err := stores[0].Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(writers * batches * 2))
		})

		It("moves a corrupt database aside and starts fresh", func() {
			path := filepath.Join(GinkgoT().TempDir(), "facts.db")
			garbage := make([]byte, 8192)
			for i := range garbage {
				garbage[i] = 0x5a
			}
			Expect(os.WriteFile(path, garbage, 0o600)).To(Succeed())

			s, err := sqlite.NewStore(ctx, sqlite.Config{Path: path})
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			Expect(s.Backup).To(HavePrefix(path + "."))
			Expect(s.Backup).To(HaveSuffix(".bak"))
			_, err = os.Stat(s.Backup)
			Expect(err).NotTo(HaveOccurred())

			n, err := s.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))
		})
	})
})
