package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/logger"
)

func decode(b []byte) map[string]any {
	var out map[string]any
	ExpectWithOffset(1, json.Unmarshal(bytes.TrimSpace(b), &out)).To(Succeed())
	return out
}

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}

var _ = Describe("New", func() {
	It("writes text lines by default", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf)).Info("pass finished", "drafted", 2)

		Expect(buf.String()).To(ContainSubstring("pass finished"))
		Expect(buf.String()).To(ContainSubstring("drafted=2"))
	})

	It("filters debug unless enabled", func() {
		var quiet, loud bytes.Buffer
		logger.New(logger.WithWriter(&quiet)).Debug("hidden")
		logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("shown")

		Expect(quiet.String()).To(BeEmpty())
		Expect(loud.String()).To(ContainSubstring("shown"))
	})

	It("honors an explicit level", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithLevel(slog.LevelWarn))
		l.Info("skipped")
		l.Warn("kept")

		Expect(buf.String()).NotTo(ContainSubstring("skipped"))
		Expect(buf.String()).To(ContainSubstring("kept"))
	})

	It("writes JSON, even when pretty is also asked for", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true)).
			Info("drafted", "key", "post:abc")

		line := decode(buf.Bytes())
		Expect(line["msg"]).To(Equal("drafted"))
		Expect(line["key"]).To(Equal("post:abc"))
	})

	It("writes pretty lines with a prefix", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithPrefix("presence")).
			Info("published")

		Expect(buf.String()).To(ContainSubstring("presence"))
		Expect(buf.String()).To(ContainSubstring("published"))
	})

	It("writes to every writer given", func() {
		var a, b bytes.Buffer
		logger.New(logger.WithWriter(&a), logger.WithWriter(&b)).Info("both")

		Expect(a.String()).To(ContainSubstring("both"))
		Expect(b.String()).To(ContainSubstring("both"))
	})
})

var _ = Describe("OpenFile", func() {
	It("appends JSON lines to the file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "pass.log")

		for _, msg := range []string{"first", "second"} {
			l, closer, err := logger.OpenFile(path)
			Expect(err).NotTo(HaveOccurred())
			l.Info(msg)
			Expect(closer.Close()).To(Succeed())
		}

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(decode([]byte(lines[1]))["msg"]).To(Equal("second"))
	})

	It("fails for a missing directory", func() {
		_, _, err := logger.OpenFile(filepath.Join(GinkgoT().TempDir(), "nope", "pass.log"))
		Expect(err).To(MatchError(ContainSubstring("opening log file")))
	})
})

var _ = Describe("Component", func() {
	It("tags records with the component", func() {
		var buf bytes.Buffer
		l := logger.Component(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)), "gate")
		l.Info("scored")

		Expect(decode(buf.Bytes())[logger.ComponentKey]).To(Equal("gate"))
	})

	It("tolerates a nil logger", func() {
		Expect(func() { logger.Component(nil, "gate").Info("x") }).NotTo(Panic())
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		h := logger.Nop().Handler()
		Expect(h.Enabled(context.Background(), slog.LevelError)).To(BeFalse())
	})
})

var _ = Describe("Multi", func() {
	It("sends records to each logger at its own level", func() {
		var console, file bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&console)),
			logger.New(logger.WithWriter(&file), logger.WithJSON(true), logger.WithDebug(true)),
		)
		multi.Debug("detail")
		multi.Info("summary")

		Expect(console.String()).NotTo(ContainSubstring("detail"))
		Expect(console.String()).To(ContainSubstring("summary"))
		Expect(file.String()).To(ContainSubstring("detail"))
		Expect(file.String()).To(ContainSubstring("summary"))
	})

	It("carries attrs and groups to every handler", func() {
		var buf bytes.Buffer
		multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
		multi.With("pass", "daily").WithGroup("summary").Info("done", "drafted", 1)

		line := decode(buf.Bytes())
		Expect(line["pass"]).To(Equal("daily"))
		Expect(line["summary"]).To(HaveKeyWithValue("drafted", BeNumerically("==", 1)))
	})

	It("skips nil loggers and flattens nested ones", func() {
		var a, b bytes.Buffer
		inner := logger.Multi(logger.New(logger.WithWriter(&a)))
		multi := logger.Multi(nil, inner, logger.New(logger.WithWriter(&b)))
		multi.Info("fanned")

		Expect(a.String()).To(ContainSubstring("fanned"))
		Expect(b.String()).To(ContainSubstring("fanned"))
	})

	It("keeps writing when one handler fails", func() {
		var buf bytes.Buffer
		multi := logger.Multi(slog.New(failingHandler{}), logger.New(logger.WithWriter(&buf)))

		r := slog.NewRecord(testTime, slog.LevelInfo, "still here", 0)
		err := multi.Handler().Handle(context.Background(), r)
		Expect(err).To(MatchError("sink down"))
		Expect(buf.String()).To(ContainSubstring("still here"))
	})
})
