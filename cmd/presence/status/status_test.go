package statuscmder

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/dotdir"
	"github.com/papercomputeco/presence/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

var _ = Describe("Status Command", func() {
	var out *bytes.Buffer

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	Describe("printPasses", func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		It("lists every pass with its last outcome", func() {
			state := &dotdir.RunState{Passes: map[string]dotdir.PassRecord{
				"commit": {FinishedAt: now.Add(-90 * time.Minute), Generated: 2, Approved: 1, Published: 1},
				"retry":  {FinishedAt: now.Add(-3 * 24 * time.Hour), Failed: 1, Error: "rate limited"},
			}}

			printPasses(out, state, now)

			Expect(out.String()).To(ContainSubstring("1h ago"))
			Expect(out.String()).To(ContainSubstring("drafted 2, approved 1, suppressed 0, published 1, failed 0"))
			Expect(out.String()).To(ContainSubstring("3d ago"))
			Expect(out.String()).To(ContainSubstring("rate limited"))
			Expect(out.String()).To(ContainSubstring("never run"))
		})
	})

	Describe("printQueue", func() {
		It("counts approved unpublished drafts", func() {
			ctx := context.Background()
			store := inmemory.NewDriver()
			_, _, err := store.SaveDraft(ctx, testutils.Scored(testutils.NewTestDraft("abc123"), 0.85, true))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = store.SaveDraft(ctx, testutils.Scored(testutils.NewTestDraft("def456"), 0.65, false))
			Expect(err).NotTo(HaveOccurred())

			Expect(printQueue(ctx, out, store)).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`Queued for publishing:\S*\s+\S*1`))
			Expect(out.String()).To(ContainSubstring("post"))
		})
	})

	Describe("ago", func() {
		It("uses the coarsest sensible unit", func() {
			Expect(ago(30 * time.Second)).To(Equal("just now"))
			Expect(ago(5 * time.Minute)).To(Equal("5m ago"))
			Expect(ago(30 * time.Hour)).To(Equal("30h ago"))
			Expect(ago(72 * time.Hour)).To(Equal("3d ago"))
		})
	})

	It("runs against a fresh directory", func() {
		tmpDir := GinkgoT().TempDir()
		cmd := NewStatusCmd()
		cmd.PersistentFlags().BoolP("debug", "d", false, "")
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config-dir", tmpDir, "--storage-driver", "memory"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("never run"))
		Expect(out.String()).To(ContainSubstring("Queued for publishing"))
	})
})
