package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("writes a single result line when not attached to a terminal", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "ingesting", func() error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("ingesting"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		Expect(buf.String()).NotTo(ContainSubstring("\r"))
	})

	It("returns the function's error", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")
		Expect(cliui.Step(&buf, "publishing", func() error { return boom })).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds with one decimal above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("switches to minutes for long passes", func() {
		Expect(cliui.FormatDuration(125 * time.Second)).To(Equal("2m05s"))
	})
})

var _ = Describe("KeyValues", func() {
	It("aligns values after the longest key", func() {
		var buf bytes.Buffer
		cliui.KeyValues(&buf, []cliui.KV{
			{Key: "Drafted", Value: "3"},
			{Key: "Suppressed", Value: "1"},
		})
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(strings.Index(lines[0], "3")).To(Equal(strings.Index(lines[1], "1")))
	})
})

var _ = Describe("Draft rendering", func() {
	draft := activity.ContentDraft{
		ID:              7,
		Key:             "post:abc123",
		Type:            activity.ContentPost,
		CommitSHAs:      []string{"abc123"},
		Body:            "Shipped a cache\nsecond line",
		TemplateKind:    "generate:post",
		TemplateVersion: 2,
		Scored:          true,
		Score:           0.85,
		Approved:        true,
		Dimensions:      map[string]float64{"clarity": 0.9, "authenticity": 0.8},
		Rationale:       "specific and plain",
		CreatedAt:       time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC),
	}

	It("lists drafts with their state and score", func() {
		out := cliui.DraftTable([]activity.ContentDraft{draft}, 120)
		Expect(out).To(ContainSubstring("0.85"))
		Expect(out).To(ContainSubstring("pending"))
		Expect(out).To(ContainSubstring("Shipped a cache"))
		Expect(out).NotTo(ContainSubstring("second line"))
	})

	It("details a draft as markdown", func() {
		out := cliui.DraftDetail(draft)
		Expect(out).To(ContainSubstring("`post:abc123`"))
		Expect(out).To(ContainSubstring("generate:post v2"))
		Expect(out).To(MatchRegexp(`(?s)authenticity.*clarity`))
		Expect(out).To(ContainSubstring("## Rationale"))
	})
})
