package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/dotdir"
)

var _ = Describe("dotdir.Manager run state", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns an empty state when nothing has been recorded", func() {
		state, err := m.LoadRunState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Passes).To(BeEmpty())
	})

	It("records the latest outcome per pass", func() {
		started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		Expect(m.RecordPass("daily", dotdir.PassRecord{StartedAt: started, Generated: 1}, tmpDir)).To(Succeed())
		Expect(m.RecordPass("per-commit", dotdir.PassRecord{Units: 3, Published: 2}, tmpDir)).To(Succeed())
		Expect(m.RecordPass("daily", dotdir.PassRecord{StartedAt: started.Add(24 * time.Hour), Suppressed: 1}, tmpDir)).To(Succeed())

		state, err := m.LoadRunState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Passes).To(HaveLen(2))
		Expect(state.Passes["daily"].Suppressed).To(Equal(1))
		Expect(state.Passes["daily"].Generated).To(Equal(0))
		Expect(state.Passes["daily"].StartedAt.Equal(started.Add(24 * time.Hour))).To(BeTrue())
		Expect(state.Passes["per-commit"].Published).To(Equal(2))
	})

	It("returns error for invalid JSON", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "runstate.json"), []byte("not json"), 0o600)).To(Succeed())

		state, err := m.LoadRunState(tmpDir)
		Expect(err).To(HaveOccurred())
		Expect(state).To(BeNil())
	})
})
