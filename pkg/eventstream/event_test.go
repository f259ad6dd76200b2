package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/eventstream"
)

var _ = Describe("MemoryUpdatedEvent", func() {
	now := time.Unix(1735689600, 0)

	It("stamps schema, type, id and time", func() {
		event := eventstream.NewMemoryUpdatedEvent("turn-1", now)
		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal("lokal.memory.updated"))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.EmittedAt).To(Equal(now.UTC()))
		Expect(event.TurnID).To(Equal("turn-1"))
		Expect(event.Applied).To(BeEmpty())
	})

	It("gives every event a distinct id", func() {
		a := eventstream.NewMemoryUpdatedEvent("t", now)
		b := eventstream.NewMemoryUpdatedEvent("t", now)
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("marshals with the expected top-level keys", func() {
		event := eventstream.NewMemoryUpdatedEvent("turn-1", now)
		event.Applied = append(event.Applied, eventstream.AppliedChange{
			Op: "update", FactID: "f1", Content: "user is named Samuel", Previous: "user is named Sam",
		})
		event.Skipped = 1
		event.FactCount = 2

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKeyWithValue("turn_id", "turn-1"))
		Expect(got).To(HaveKeyWithValue("fact_count", BeNumerically("==", 2)))
		Expect(got).NotTo(HaveKey("error"))

		applied := got["applied"].([]any)
		Expect(applied).To(HaveLen(1))
		Expect(applied[0]).To(HaveKeyWithValue("previous", "user is named Sam"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil memory event"))
	})
})
