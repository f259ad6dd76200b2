package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/llm"
	"github.com/papercomputeco/lokal/pkg/llm/provider/ollama"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		received map[string]any
		reply    string
		status   int
	)

	BeforeEach(func() {
		received = nil
		reply = `{"model":"llama3.2","message":{"role":"assistant","content":"{\"operations\":[]}"},"done":true}`
		status = http.StatusOK

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends a non-streaming chat request and returns the message", func() {
		c := ollama.New("", server.URL, nil)

		out, err := llm.Text(context.Background(), c, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"operations":[]}`))

		Expect(received["model"]).To(Equal(ollama.DefaultModel))
		Expect(received["stream"]).To(BeFalse())
		Expect(received).NotTo(HaveKey("format"))
		Expect(received["messages"]).To(HaveLen(1))
	})

	It("requests JSON output at temperature zero for structured calls", func() {
		c := ollama.New("qwen2.5", server.URL, nil)

		_, err := llm.Structured(context.Background(), c, "extract")
		Expect(err).NotTo(HaveOccurred())

		Expect(received["model"]).To(Equal("qwen2.5"))
		Expect(received["format"]).To(Equal("json"))
		Expect(received["options"]).To(HaveKeyWithValue("temperature", BeNumerically("==", 0)))
	})

	It("puts the system prompt first", func() {
		c := ollama.New("", server.URL, nil)

		_, err := c.Generate(context.Background(), llm.Request{
			System:   "be brief",
			Messages: []llm.Message{llm.UserMessage("hi"), llm.AssistantMessage("hello"), llm.UserMessage("bye")},
		})
		Expect(err).NotTo(HaveOccurred())

		msgs := received["messages"].([]any)
		Expect(msgs).To(HaveLen(4))
		Expect(msgs[0]).To(HaveKeyWithValue("role", "system"))
	})

	It("returns an error on non-200 responses", func() {
		status = http.StatusNotFound
		reply = `{"error":"model not found"}`
		c := ollama.New("", server.URL, nil)

		_, err := llm.Text(context.Background(), c, "hello")
		Expect(err).To(MatchError(ContainSubstring("status 404")))
	})

	It("reports empty responses", func() {
		reply = `{"message":{"role":"assistant","content":"  "},"done":true}`
		c := ollama.New("", server.URL, nil)

		_, err := llm.Text(context.Background(), c, "hello")
		Expect(err).To(MatchError(llm.ErrEmptyResponse))
	})
})
