package correlate_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/correlate"
	"github.com/papercomputeco/presence/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

type failingFinder struct{}

func (failingFinder) FindPromptsInWindow(context.Context, time.Time, time.Duration) ([]activity.PromptEvent, error) {
	return nil, errors.New("disk on fire")
}

var _ = Describe("Correlator", func() {
	var (
		ctx        context.Context
		store      *inmemory.Driver
		correlator *correlate.Correlator
		noon       = testutils.Noon
	)

	record := func(uuid string, at time.Time) {
		_, err := store.RecordPrompt(ctx, testutils.NewTestPrompt(uuid, at))
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()

		var err error
		correlator, err = correlate.New(store, correlate.Options{Floor: correlate.DefaultFloor})
		Expect(err).NotTo(HaveOccurred())
	})

	It("links a prompt 29 minutes away above the floor and drops one 31 minutes away", func() {
		record("near", noon.Add(29*time.Minute))
		record("far", noon.Add(31*time.Minute))

		unit, err := correlator.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Links).To(HaveLen(1))
		Expect(unit.Links[0].PromptUUID).To(Equal("near"))
		Expect(unit.Links[0].Confidence).To(BeNumerically(">", correlate.DefaultFloor))
	})

	It("links abc123 to p1 and excludes p2", func() {
		record("p1", time.Date(2026, 3, 14, 11, 45, 0, 0, time.UTC))
		record("p2", time.Date(2026, 3, 14, 12, 35, 0, 0, time.UTC))

		unit, err := correlator.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Links).To(HaveLen(1))
		Expect(unit.Links[0].CommitSHA).To(Equal("abc123"))
		Expect(unit.Links[0].PromptUUID).To(Equal("p1"))
		Expect(unit.Links[0].Distance).To(Equal(15 * time.Minute))
		Expect(unit.Links[0].Confidence).To(BeNumerically("~", 0.55, 1e-9))
		Expect(unit.Prompts).To(HaveLen(1))
	})

	It("keeps every candidate above the minimum, best first", func() {
		record("later", noon.Add(20*time.Minute))
		record("closest", noon.Add(-2*time.Minute))
		record("middle", noon.Add(10*time.Minute))

		unit, err := correlator.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).NotTo(HaveOccurred())

		var uuids []string
		for _, l := range unit.Links {
			uuids = append(uuids, l.PromptUUID)
		}
		Expect(uuids).To(Equal([]string{"closest", "middle", "later"}))
	})

	It("treats a commit with no prompts as a valid commit-only unit", func() {
		unit, err := correlator.Correlate(ctx, testutils.NewTestCommit("lonely", noon))
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Commit.SHA).To(Equal("lonely"))
		Expect(unit.Links).To(BeEmpty())
		Expect(unit.Prompts).To(BeEmpty())
	})

	It("applies a minimum confidence above the floor", func() {
		strict, err := correlate.New(store, correlate.Options{Floor: 0.1, MinConfidence: 0.5})
		Expect(err).NotTo(HaveOccurred())
		record("near", noon.Add(5*time.Minute))
		record("edge", noon.Add(25*time.Minute))

		unit, err := strict.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Links).To(HaveLen(1))
		Expect(unit.Links[0].PromptUUID).To(Equal("near"))
	})

	It("filters by project when asked", func() {
		scoped, err := correlate.New(store, correlate.Options{Floor: 0.1, MatchProject: true})
		Expect(err).NotTo(HaveOccurred())

		other := testutils.NewTestPrompt("other", noon)
		other.ProjectPath = "/home/dev/elsewhere"
		_, err = store.RecordPrompt(ctx, other)
		Expect(err).NotTo(HaveOccurred())
		record("mine", noon.Add(time.Minute))

		unit, err := scoped.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Links).To(HaveLen(1))
		Expect(unit.Links[0].PromptUUID).To(Equal("mine"))
	})

	It("resolves project paths through ProjectName", func() {
		scoped, err := correlate.New(store, correlate.Options{
			Floor:        0.1,
			MatchProject: true,
			ProjectName: func(path string) string {
				if strings.HasPrefix(path, "/home/dev/presence/") {
					return "presence"
				}
				return filepath.Base(path)
			},
		})
		Expect(err).NotTo(HaveOccurred())

		nested := testutils.NewTestPrompt("nested", noon)
		nested.ProjectPath = "/home/dev/presence/pkg/gate"
		_, err = store.RecordPrompt(ctx, nested)
		Expect(err).NotTo(HaveOccurred())

		unit, err := scoped.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Links).To(HaveLen(1))
		Expect(unit.Links[0].PromptUUID).To(Equal("nested"))
	})

	It("wraps store failures", func() {
		c, err := correlate.New(failingFinder{}, correlate.Options{})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Correlate(ctx, testutils.NewTestCommit("abc123", noon))
		Expect(err).To(MatchError(ContainSubstring("disk on fire")))
	})

	It("rejects a floor outside [0,1)", func() {
		_, err := correlate.New(store, correlate.Options{Floor: 1})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Confidence", func() {
	window := 30 * time.Minute

	It("is 1.0 at the commit and the floor at the boundary", func() {
		Expect(correlate.Confidence(0, window, 0.1)).To(Equal(1.0))
		Expect(correlate.Confidence(window, window, 0.1)).To(BeNumerically("~", 0.1, 1e-12))
		Expect(correlate.Confidence(-window, window, 0.1)).To(BeNumerically("~", 0.1, 1e-12))
		Expect(correlate.Confidence(window+time.Second, window, 0.1)).To(BeZero())
	})

	It("never increases with distance", func() {
		prev := correlate.Confidence(0, window, 0.1)
		for d := time.Duration(0); d <= window+time.Minute; d += 17 * time.Second {
			c := correlate.Confidence(d, window, 0.1)
			Expect(c).To(BeNumerically("<=", prev))
			prev = c
		}
	})

	It("is symmetric around the commit", func() {
		Expect(correlate.Confidence(-7*time.Minute, window, 0.2)).To(Equal(correlate.Confidence(7*time.Minute, window, 0.2)))
	})
})
