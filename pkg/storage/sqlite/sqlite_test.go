package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

var _ = Describe("Driver", func() {
	Describe("NewDriver", func() {
		It("creates a driver with file database", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "presence.db")

			s, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("persists events across reopen", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "presence.db")

			s, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.RecordCommit(ctx, testutils.NewTestCommit("abc123", testutils.Noon))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			s, err = sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			stored, err := s.RecordCommit(ctx, testutils.NewTestCommit("abc123", testutils.Noon))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())
		})
	})

	Describe("storage.Driver", func() {
		testutils.DescribeStorageDriver(func(ctx context.Context) storage.Driver {
			d, err := sqlite.NewDriver(ctx, ":memory:")
			Expect(err).NotTo(HaveOccurred())
			return d
		})
	})
})
