package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lokal/pkg/logger"
)

// jsonLines decodes one JSON record per line.
func jsonLines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		Expect(json.Unmarshal([]byte(line), &rec)).To(Succeed())
		out = append(out, rec)
	}
	return out
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

var _ = Describe("New", func() {
	var buf bytes.Buffer

	BeforeEach(func() {
		buf.Reset()
	})

	It("writes text records at info level by default", func() {
		log := logger.New(logger.WithWriter(&buf))
		log.Debug("worker started")
		log.Info("turn queued", "turn_id", "t-1")

		Expect(buf.String()).NotTo(ContainSubstring("worker started"))
		Expect(buf.String()).To(ContainSubstring("turn queued"))
		Expect(buf.String()).To(ContainSubstring("turn_id=t-1"))
	})

	It("lets WithDebug lower the level and raise it again", func() {
		log := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
		log.Debug("extraction response")
		Expect(buf.String()).To(ContainSubstring("extraction response"))

		buf.Reset()
		log = logger.New(logger.WithWriter(&buf), logger.WithDebug(true), logger.WithDebug(false))
		log.Debug("extraction response")
		Expect(buf.String()).To(BeEmpty())
	})

	It("honors WithLevel", func() {
		log := logger.New(logger.WithWriter(&buf), logger.WithLevel(slog.LevelWarn))
		log.Info("memory updated")
		log.Warn("turn dropped")

		Expect(buf.String()).NotTo(ContainSubstring("memory updated"))
		Expect(buf.String()).To(ContainSubstring("turn dropped"))
	})

	It("emits one JSON object per record", func() {
		log := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
		log.Info("memory updated", "op", "add", "applied", 2)
		log.Warn("turn dropped")

		recs := jsonLines(&buf)
		Expect(recs).To(HaveLen(2))
		Expect(recs[0]).To(HaveKeyWithValue("msg", "memory updated"))
		Expect(recs[0]).To(HaveKeyWithValue("op", "add"))
		Expect(recs[0]["applied"]).To(BeNumerically("==", 2))
		Expect(recs[1]).To(HaveKeyWithValue("level", "WARN"))
	})

	It("prefers JSON over the pretty format", func() {
		log := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true))
		log.Info("shutdown complete")

		Expect(jsonLines(&buf)).To(HaveLen(1))
	})

	It("renders the pretty console format", func() {
		log := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
		log.Warn("fact database was unreadable", "backup", "facts.db.1.bak")

		Expect(buf.String()).To(ContainSubstring("fact database was unreadable"))
		Expect(buf.String()).To(ContainSubstring("facts.db.1.bak"))
	})

	It("copies records to every writer", func() {
		var other bytes.Buffer
		log := logger.New(logger.WithWriters(&buf, &other))
		log.Info("memory erased")

		Expect(buf.String()).To(ContainSubstring("memory erased"))
		Expect(other.String()).To(ContainSubstring("memory erased"))
	})

	It("adds the source location with WithSource", func() {
		log := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true))
		log.Info("located")

		Expect(jsonLines(&buf)[0]).To(HaveKey(slog.SourceKey))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		h := logger.Nop().Handler()
		for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
			Expect(h.Enabled(context.Background(), level)).To(BeFalse())
		}
	})

	It("survives derived loggers", func() {
		log := logger.Nop().With("turn_id", "t-1").WithGroup("cycle")
		Expect(func() { log.Error("abandoned", "stage", "generate") }).NotTo(Panic())
	})
})

var _ = Describe("Multi", func() {
	var console, file bytes.Buffer

	BeforeEach(func() {
		console.Reset()
		file.Reset()
	})

	It("filters each sink by its own level", func() {
		log := logger.Multi(
			logger.New(logger.WithWriter(&console)),
			logger.New(logger.WithWriter(&file), logger.WithDebug(true)),
		)
		log.Debug("turn queued")
		log.Info("memory updated")

		Expect(console.String()).NotTo(ContainSubstring("turn queued"))
		Expect(console.String()).To(ContainSubstring("memory updated"))
		Expect(file.String()).To(ContainSubstring("turn queued"))
		Expect(file.String()).To(ContainSubstring("memory updated"))
	})

	It("carries attrs and groups to every sink", func() {
		log := logger.Multi(
			logger.New(logger.WithWriter(&console), logger.WithJSON(true)),
			logger.New(logger.WithWriter(&file), logger.WithJSON(true)),
		)
		log.With("turn_id", "t-9").WithGroup("op").Info("applied", "kind", "update")

		for _, buf := range []*bytes.Buffer{&console, &file} {
			rec := jsonLines(buf)[0]
			Expect(rec).To(HaveKeyWithValue("turn_id", "t-9"))
			Expect(rec).To(HaveKeyWithValue("op", HaveKeyWithValue("kind", "update")))
		}
	})

	It("still reaches healthy sinks when one fails", func() {
		log := logger.Multi(
			logger.New(logger.WithWriter(failingWriter{})),
			logger.New(logger.WithWriter(&file)),
		)
		log.Info("memory erased")

		Expect(file.String()).To(ContainSubstring("memory erased"))
	})

	It("ignores nil loggers", func() {
		log := logger.Multi(nil, logger.New(logger.WithWriter(&file)))
		log.Info("ready")

		Expect(file.String()).To(ContainSubstring("ready"))
	})
})
