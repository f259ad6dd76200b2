package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/facts/factstest"
	"github.com/papercomputeco/lokal/pkg/facts/inmemory"
	"github.com/papercomputeco/lokal/pkg/llm"
	"github.com/papercomputeco/lokal/pkg/logger"
	"github.com/papercomputeco/lokal/pkg/memory"
)

func do(s *Server, method, target, body string) *http.Response {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		store  *inmemory.Store
		server *Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore(facts.WithClock(factstest.NewClock().Now))

		for _, f := range []struct {
			content  string
			category facts.Category
		}{
			{"user's name is Sam", facts.CategoryIdentity},
			{"user likes coffee", facts.CategoryPreference},
			{"user owns a bicycle", facts.CategoryOther},
		} {
			_, err := store.Insert(ctx, f.content, f.category)
			Expect(err).NotTo(HaveOccurred())
		}

		var err error
		server, err = NewServer(Config{ListenAddr: ":0", PinIdentity: 1}, store, nil, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("requires a store", func() {
			_, err := NewServer(Config{}, nil, nil, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("fact store is required")))
		})

		It("requires a logger", func() {
			_, err := NewServer(Config{}, store, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})
	})

	It("answers ping", func() {
		resp := do(server, http.MethodGet, "/ping", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
	})

	Describe("GET /v1/facts", func() {
		It("lists facts newest first", func() {
			resp := do(server, http.MethodGet, "/v1/facts", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out ListResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(3))
			Expect(out.Facts[0].Content).To(Equal("user owns a bicycle"))
		})

		It("filters by category", func() {
			resp := do(server, http.MethodGet, "/v1/facts?category=identity", "")

			var out ListResponse
			decode(resp, &out)
			Expect(out.Facts).To(HaveLen(1))
			Expect(out.Facts[0].Content).To(Equal("user's name is Sam"))
		})

		It("applies the limit", func() {
			var out ListResponse
			decode(do(server, http.MethodGet, "/v1/facts?limit=2", ""), &out)
			Expect(out.Facts).To(HaveLen(2))
		})

		It("rejects an unknown category", func() {
			resp := do(server, http.MethodGet, "/v1/facts?category=weather", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a bad limit", func() {
			resp := do(server, http.MethodGet, "/v1/facts?limit=abc", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/facts/search", func() {
		It("requires a query", func() {
			resp := do(server, http.MethodGet, "/v1/facts/search", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var out ErrorResponse
			decode(resp, &out)
			Expect(out.Error).To(Equal("query parameter is required"))
		})

		It("rejects a non-positive limit", func() {
			resp := do(server, http.MethodGet, "/v1/facts/search?query=coffee&limit=0", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns matches followed by pinned identity facts", func() {
			resp := do(server, http.MethodGet, "/v1/facts/search?query=coffee", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(2))
			Expect(out.Facts[0].Content).To(Equal("user likes coffee"))
			Expect(out.Facts[1].Content).To(Equal("user's name is Sam"))
		})

		It("skips pinning when asked", func() {
			var out SearchResponse
			decode(do(server, http.MethodGet, "/v1/facts/search?query=coffee&pin=false", ""), &out)
			Expect(out.Facts).To(HaveLen(1))
		})

		It("returns an empty list when nothing matches", func() {
			Expect(store.Clear(ctx)).To(Succeed())

			resp := do(server, http.MethodGet, "/v1/facts/search?query=coffee", "")
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"facts":[]`))
		})
	})

	It("counts facts", func() {
		var out map[string]int
		decode(do(server, http.MethodGet, "/v1/facts/count", ""), &out)
		Expect(out["count"]).To(Equal(3))
	})

	Describe("GET /v1/facts/:id", func() {
		It("returns the fact", func() {
			list, err := store.List(ctx, facts.ListOptions{Limit: 1})
			Expect(err).NotTo(HaveOccurred())

			var out facts.Fact
			decode(do(server, http.MethodGet, "/v1/facts/"+list[0].ID, ""), &out)
			Expect(out.Content).To(Equal(list[0].Content))
		})

		It("returns 404 for an unknown id", func() {
			resp := do(server, http.MethodGet, "/v1/facts/nope", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("POST /v1/facts", func() {
		It("adds a fact", func() {
			resp := do(server, http.MethodPost, "/v1/facts", `{"content":"user is allergic to peanuts"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var out facts.Fact
			decode(resp, &out)
			Expect(out.ID).NotTo(BeEmpty())
			Expect(factstest.Contents(ctx, store)).To(ContainElement("user is allergic to peanuts"))
		})

		It("rejects a duplicate", func() {
			resp := do(server, http.MethodPost, "/v1/facts", `{"content":"User likes coffee."}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects empty content", func() {
			resp := do(server, http.MethodPost, "/v1/facts", `{"content":"   "}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a malformed body", func() {
			resp := do(server, http.MethodPost, "/v1/facts", `{"content":`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("DELETE /v1/facts/:ref", func() {
		It("forgets the fact a reference resolves to", func() {
			resp := do(server, http.MethodDelete, "/v1/facts/user%20owns%20a%20bicycle", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(factstest.Contents(ctx, store)).NotTo(ContainElement("user owns a bicycle"))
		})

		It("returns 404 when nothing matches", func() {
			resp := do(server, http.MethodDelete, "/v1/facts/user%20plays%20chess", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	It("erases every fact", func() {
		resp := do(server, http.MethodDelete, "/v1/facts", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	Describe("POST /v1/turns", func() {
		It("returns 503 without a memory manager", func() {
			resp := do(server, http.MethodPost, "/v1/turns", `{"user":"hi"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))

			var out ErrorResponse
			decode(resp, &out)
			Expect(out.Error).To(Equal(memory.ErrNotConfigured.Error()))
		})

		Context("with a memory manager", func() {
			var mgr *memory.Manager

			BeforeEach(func() {
				var err error
				mgr, err = memory.New(memory.Config{
					Store: store,
					Generator: llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
						return `{"operations":[{"op":"add","fact":"User is allergic to peanuts"}]}`, nil
					}),
				})
				Expect(err).NotTo(HaveOccurred())
				DeferCleanup(func() { _ = mgr.Close(context.Background()) })

				server, err = NewServer(Config{ListenAddr: ":0"}, store, mgr, logger.Nop())
				Expect(err).NotTo(HaveOccurred())
			})

			It("queues the turn and extracts its facts in the background", func() {
				resp := do(server, http.MethodPost, "/v1/turns",
					`{"id":"turn-1","user":"I'm allergic to peanuts","assistant":"Noted, I'll keep that in mind."}`)
				Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))

				var out RecordTurnResponse
				decode(resp, &out)
				Expect(out.TurnID).To(Equal("turn-1"))

				var ev memory.Event
				Eventually(mgr.Events(), 5*time.Second).Should(Receive(&ev))
				Expect(ev.TurnID).To(Equal("turn-1"))
				Expect(ev.Applied).To(HaveLen(1))
				Expect(factstest.Contents(ctx, store)).To(ContainElement("User is allergic to peanuts"))
			})

			It("assigns a turn id when none is given", func() {
				var out RecordTurnResponse
				decode(do(server, http.MethodPost, "/v1/turns", `{"user":"I live in Lisbon","assistant":"Lovely city."}`), &out)
				Expect(out.TurnID).NotTo(BeEmpty())
			})

			It("erases through the manager", func() {
				resp := do(server, http.MethodDelete, "/v1/facts", "")
				Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))
				Expect(factstest.Contents(ctx, store)).To(BeEmpty())
			})

			It("returns 503 once the manager is closed", func() {
				Expect(mgr.Close(ctx)).To(Succeed())

				resp := do(server, http.MethodPost, "/v1/turns", `{"user":"I live in Lisbon"}`)
				Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
			})
		})
	})

	It("mounts the MCP endpoint", func() {
		resp := do(server, http.MethodPost, "/mcp", `{}`)
		Expect(resp.StatusCode).NotTo(Equal(fiber.StatusNotFound))
	})
})
