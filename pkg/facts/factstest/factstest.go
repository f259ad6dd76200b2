// Package factstest holds the behavioral suite every facts.Store backend must
// pass, plus small helpers for tests that need a store.
package factstest

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/facts"
)

// Clock is a deterministic time source that advances one second per call.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)
	return c.now
}

// Contents returns the content of every fact in s, newest first.
func Contents(ctx context.Context, s facts.Store) []string {
	list, err := s.List(ctx, facts.ListOptions{})
	Expect(err).NotTo(HaveOccurred())

	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.Content)
	}
	return out
}

// DescribeStore registers the conformance suite for a backend. newStore must
// return an empty store configured with the given options.
func DescribeStore(newStore func(opts ...facts.Option) facts.Store) {
	var (
		store facts.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore(facts.WithClock(NewClock().Now))
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	Describe("Insert", func() {
		It("normalizes content and assigns an id", func() {
			f, err := store.Insert(ctx, "  user   likes\tcoffee ", facts.CategoryPreference)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.ID).NotTo(BeEmpty())
			Expect(f.Content).To(Equal("user likes coffee"))
			Expect(f.Category).To(Equal(facts.CategoryPreference))
			Expect(f.CreatedAt).To(Equal(f.UpdatedAt))
		})

		It("classifies content when no category is given", func() {
			f, err := store.Insert(ctx, "user's sister is named Ana", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Category).To(Equal(facts.CategoryRelationship))
		})

		It("rejects empty content", func() {
			_, err := store.Insert(ctx, "   ", facts.CategoryOther)
			Expect(err).To(MatchError(facts.ErrValidation))

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))
		})

		It("rejects content that is only sentence punctuation", func() {
			for _, c := range []string{"...", "!", " ;. "} {
				_, err := store.Insert(ctx, c, facts.CategoryOther)
				var verr *facts.ValidationError
				Expect(errors.As(err, &verr)).To(BeTrue(), "content %q", c)
				Expect(verr.Reason).To(Equal(facts.ReasonEmpty))
			}

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))
		})

		It("keeps exactly one fact for duplicate content", func() {
			_, err := store.Insert(ctx, "User likes coffee.", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Insert(ctx, "user  LIKES coffee", "")
			var verr *facts.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
			Expect(err).To(MatchError(facts.ErrValidation))

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("is found by a matching keyword", func() {
			f, err := store.Insert(ctx, "user is allergic to peanuts", "")
			Expect(err).NotTo(HaveOccurred())

			found, err := store.Search(ctx, "any PEANUTS in this?", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].ID).To(Equal(f.ID))
		})
	})

	Describe("Get", func() {
		It("returns a stored fact", func() {
			f, err := store.Insert(ctx, "user lives in Lisbon", "")
			Expect(err).NotTo(HaveOccurred())

			got, err := store.Get(ctx, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("user lives in Lisbon"))
			Expect(got.CreatedAt.Equal(f.CreatedAt)).To(BeTrue())
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := store.Get(ctx, "missing")
			Expect(err).To(MatchError(facts.ErrNotFound))
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			for _, c := range []string{"user is named Samuel", "user likes green tea"} {
				_, err := store.Insert(ctx, c, "")
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("removes by exact content regardless of case", func() {
			f, err := store.Remove(ctx, "USER LIKES GREEN TEA.")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Content).To(Equal("user likes green tea"))
			Expect(Contents(ctx, store)).To(ConsistOf("user is named Samuel"))
		})

		It("removes by id", func() {
			list, err := store.Search(ctx, "tea", 1)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Remove(ctx, list[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(Contents(ctx, store)).To(ConsistOf("user is named Samuel"))
		})

		It("resolves a close paraphrase", func() {
			_, err := store.Remove(ctx, "user likes tea")
			Expect(err).NotTo(HaveOccurred())
			Expect(Contents(ctx, store)).To(ConsistOf("user is named Samuel"))
		})

		It("does not resolve a reference below the threshold", func() {
			_, err := store.Remove(ctx, "user is named Sam")
			var nf *facts.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nf))
			Expect(Contents(ctx, store)).To(HaveLen(2))
		})

		It("drops the fact from search results", func() {
			_, err := store.Remove(ctx, "user likes green tea")
			Expect(err).NotTo(HaveOccurred())

			found, err := store.Search(ctx, "tea", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		It("replaces content in place and bumps updated_at", func() {
			orig, err := store.Insert(ctx, "user works as a nurse", "")
			Expect(err).NotTo(HaveOccurred())

			f, err := store.Update(ctx, "user works as a nurse", "user works as a doctor")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.ID).To(Equal(orig.ID))
			Expect(f.Content).To(Equal("user works as a doctor"))
			Expect(f.UpdatedAt.After(orig.UpdatedAt)).To(BeTrue())
			Expect(f.CreatedAt.Equal(orig.CreatedAt)).To(BeTrue())

			found, err := store.Search(ctx, "nurse", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())

			found, err = store.Search(ctx, "doctor", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
		})

		It("rejects punctuation-only replacement content", func() {
			_, err := store.Insert(ctx, "user works as a nurse", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Update(ctx, "user works as a nurse", "...")
			Expect(err).To(MatchError(facts.ErrValidation))
			Expect(Contents(ctx, store)).To(ConsistOf("user works as a nurse"))
		})

		It("falls back to insert when nothing matches", func() {
			f, err := store.Update(ctx, "user has a cat", "user has two cats")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Content).To(Equal("user has two cats"))
			Expect(Contents(ctx, store)).To(ConsistOf("user has two cats"))
		})

		It("rejects an update that would duplicate another fact", func() {
			_, err := store.Insert(ctx, "user likes jazz", "")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "user likes rock music", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Update(ctx, "user likes rock music", "user likes jazz")
			Expect(err).To(MatchError(facts.ErrValidation))
			Expect(Contents(ctx, store)).To(ConsistOf("user likes jazz", "user likes rock music"))
		})
	})

	Describe("Apply", func() {
		It("applies the Sam to Samuel scenario in emission order", func() {
			_, err := store.Insert(ctx, "user is named Sam", "")
			Expect(err).NotTo(HaveOccurred())

			results, err := store.Apply(ctx, []facts.Change{
				{Op: facts.OpAdd, Content: "user likes coffee"},
				{Op: facts.OpRemove, Ref: "user is named Sam"},
				{Op: facts.OpAdd, Content: "user is named Samuel"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			for _, r := range results {
				Expect(r.Applied()).To(BeTrue())
			}

			Expect(Contents(ctx, store)).To(ConsistOf("user likes coffee", "user is named Samuel"))
		})

		It("skips failing changes without affecting the rest", func() {
			results, err := store.Apply(ctx, []facts.Change{
				{Op: facts.OpAdd, Content: "user plays chess"},
				{Op: facts.OpAdd, Content: "user plays chess"},
				{Op: facts.OpRemove, Ref: "user owns a boat"},
				{Op: facts.OpAdd, Content: ""},
				{Op: facts.OpAdd, Content: "user speaks French"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))
			Expect(results[0].Applied()).To(BeTrue())
			Expect(results[1].Err).To(MatchError(facts.ErrValidation))
			Expect(results[2].Err).To(MatchError(facts.ErrNotFound))
			Expect(results[3].Err).To(MatchError(facts.ErrValidation))
			Expect(results[4].Applied()).To(BeTrue())

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("counts additions minus successful removals", func() {
			_, err := store.Insert(ctx, "user has a dog named Rex", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Apply(ctx, []facts.Change{
				{Op: facts.OpAdd, Content: "user likes hiking"},
				{Op: facts.OpAdd, Content: "user likes sushi"},
				{Op: facts.OpAdd, Content: "user likes opera"},
				{Op: facts.OpRemove, Ref: "user has a dog named Rex"},
				{Op: facts.OpRemove, Ref: "user drives a truck"},
			})
			Expect(err).NotTo(HaveOccurred())

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1 + 3 - 1))
		})

		It("sees earlier changes of the same batch", func() {
			results, err := store.Apply(ctx, []facts.Change{
				{Op: facts.OpAdd, Content: "user lives in Berlin"},
				{Op: facts.OpUpdate, Ref: "user lives in Berlin", Content: "user lives in Munich"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[1].Previous).NotTo(BeNil())
			Expect(results[1].Previous.Content).To(Equal("user lives in Berlin"))
			Expect(Contents(ctx, store)).To(ConsistOf("user lives in Munich"))
		})

		It("aborts the whole batch when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := store.Apply(cctx, []facts.Change{{Op: facts.OpAdd, Content: "user likes kites"}})
			Expect(err).To(HaveOccurred())

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))
		})
	})

	Describe("Search", func() {
		It("returns only matching facts, most recent first", func() {
			for _, c := range []string{"user drinks coffee every morning", "user owns a bicycle", "user prefers iced coffee"} {
				_, err := store.Insert(ctx, c, "")
				Expect(err).NotTo(HaveOccurred())
			}

			found, err := store.Search(ctx, "coffee", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
			Expect(found[0].Content).To(Equal("user prefers iced coffee"))
			Expect(found[1].Content).To(Equal("user drinks coffee every morning"))
		})

		It("ranks by number of matching terms before recency", func() {
			_, err := store.Insert(ctx, "user plays guitar in a band", "")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "user plays tennis", "")
			Expect(err).NotTo(HaveOccurred())

			found, err := store.Search(ctx, "which band do you play guitar in", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeEmpty())
			Expect(found[0].Content).To(Equal("user plays guitar in a band"))
		})

		It("maps first-person queries onto user facts", func() {
			_, err := store.Insert(ctx, "user is named Alex", "")
			Expect(err).NotTo(HaveOccurred())

			found, err := store.Search(ctx, "who am I", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
		})

		It("honors the limit", func() {
			for _, c := range []string{"user likes apples", "user likes pears", "user likes plums"} {
				_, err := store.Insert(ctx, c, "")
				Expect(err).NotTo(HaveOccurred())
			}

			found, err := store.Search(ctx, "likes", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
		})

		It("returns nothing for queries without terms", func() {
			_, err := store.Insert(ctx, "user likes apples", "")
			Expect(err).NotTo(HaveOccurred())

			found, err := store.Search(ctx, "is it ok?", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})
	})

	Describe("List", func() {
		It("filters by category and limits newest first", func() {
			_, err := store.Insert(ctx, "user likes tea", facts.CategoryPreference)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "user is named Kim", facts.CategoryIdentity)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "user likes soup", facts.CategoryPreference)
			Expect(err).NotTo(HaveOccurred())

			list, err := store.List(ctx, facts.ListOptions{Category: facts.CategoryPreference, Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].Content).To(Equal("user likes soup"))
		})
	})

	Describe("Clear", func() {
		It("removes every fact and index entry", func() {
			for _, c := range []string{"user likes apples", "user is named Kim"} {
				_, err := store.Insert(ctx, c, "")
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(store.Clear(ctx)).To(Succeed())

			n, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))

			for _, q := range []string{"apples", "Kim", "user"} {
				found, err := store.Search(ctx, q, 5)
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeEmpty())
			}

			_, err = store.Insert(ctx, "user likes apples", "")
			Expect(err).NotTo(HaveOccurred())
		})
	})
}
