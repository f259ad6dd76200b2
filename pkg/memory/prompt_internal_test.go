package memory

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/delta"
	"github.com/papercomputeco/lokal/pkg/facts"
)

var _ = Describe("filler", func() {
	DescribeTable("detects acknowledgements",
		func(input string, expected bool) {
			Expect(filler(input)).To(Equal(expected))
		},
		Entry("ok", "ok", true),
		Entry("thanks with punctuation", "Thanks!", true),
		Entry("thank you", "thank you", true),
		Entry("blank", "  ", true),
		Entry("short statement", "I'm vegan", false),
		Entry("three words of filler", "ok ok ok", false),
		Entry("name", "my name is Sam", false),
	)
})

var _ = Describe("memoryBlock", func() {
	It("numbers facts from one", func() {
		out := memoryBlock([]facts.Fact{{Content: "user likes tea"}, {Content: "user is named Sam"}})
		Expect(out).To(Equal("[ID: 1] user likes tea\n[ID: 2] user is named Sam"))
	})

	It("marks empty memory", func() {
		Expect(memoryBlock(nil)).To(Equal("(empty)"))
	})
})

var _ = Describe("userPrompt", func() {
	It("includes memory, context and input", func() {
		out := userPrompt([]facts.Fact{{Content: "user likes tea"}}, Turn{User: "I moved to Oslo", Assistant: "Welcome!"})
		Expect(out).To(ContainSubstring("### CURRENT MEMORY:\n[ID: 1] user likes tea"))
		Expect(out).To(ContainSubstring("Welcome!"))
		Expect(out).To(ContainSubstring("### NEW USER INPUT:\nI moved to Oslo"))
	})
})

var _ = Describe("plan", func() {
	current := []facts.Fact{
		{ID: "id-1", Content: "user likes tea"},
		{ID: "id-2", Content: "user is named Sam"},
	}

	It("maps ordinals to fact ids", func() {
		changes, dropped := plan(current, []delta.Operation{
			{Kind: delta.KindUpdate, Ordinal: 2, Target: "user is named Sam", Content: "user is named Samuel"},
			{Kind: delta.KindRemove, Ordinal: 1},
		})
		Expect(dropped).To(BeZero())
		Expect(changes).To(Equal([]facts.Change{
			{Op: facts.OpUpdate, Ref: "id-2", Content: "user is named Samuel"},
			{Op: facts.OpRemove, Ref: "id-1"},
		}))
	})

	It("drops unknown ordinals without a text reference", func() {
		changes, dropped := plan(current, []delta.Operation{{Kind: delta.KindRemove, Ordinal: 9}})
		Expect(changes).To(BeEmpty())
		Expect(dropped).To(Equal(1))
	})

	It("keeps the text reference when the ordinal is unknown", func() {
		changes, _ := plan(current, []delta.Operation{{Kind: delta.KindRemove, Ordinal: 9, Target: "user likes tea"}})
		Expect(changes).To(ConsistOf(facts.Change{Op: facts.OpRemove, Ref: "user likes tea"}))
	})

	It("drops ADDs repeating memory or the batch", func() {
		changes, dropped := plan(current, []delta.Operation{
			{Kind: delta.KindAdd, Content: "User likes tea."},
			{Kind: delta.KindAdd, Content: "user owns a kayak"},
			{Kind: delta.KindAdd, Content: "user owns a  kayak"},
		})
		Expect(dropped).To(Equal(2))
		Expect(changes).To(ConsistOf(facts.Change{Op: facts.OpAdd, Content: "user owns a kayak"}))
	})

	It("keeps an ADD restoring a fact replaced earlier in the batch", func() {
		changes, dropped := plan(current, []delta.Operation{
			{Kind: delta.KindUpdate, Ordinal: 1, Content: "user likes green tea"},
			{Kind: delta.KindAdd, Content: "user likes tea"},
		})
		Expect(dropped).To(BeZero())
		Expect(changes).To(Equal([]facts.Change{
			{Op: facts.OpUpdate, Ref: "id-1", Content: "user likes green tea"},
			{Op: facts.OpAdd, Content: "user likes tea"},
		}))
	})

	It("keeps an ADD restoring a fact removed earlier in the batch by text", func() {
		changes, dropped := plan(current, []delta.Operation{
			{Kind: delta.KindRemove, Target: "User is named Sam."},
			{Kind: delta.KindAdd, Content: "user is named Sam"},
		})
		Expect(dropped).To(BeZero())
		Expect(changes).To(HaveLen(2))
	})

	It("drops an ADD repeating content an UPDATE of the batch introduced", func() {
		changes, dropped := plan(current, []delta.Operation{
			{Kind: delta.KindUpdate, Ordinal: 1, Content: "user likes green tea"},
			{Kind: delta.KindAdd, Content: "User likes green tea."},
		})
		Expect(dropped).To(Equal(1))
		Expect(changes).To(HaveLen(1))
	})
})
