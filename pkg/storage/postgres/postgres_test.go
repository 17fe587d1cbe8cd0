package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/ent/migrate"
	"github.com/papercomputeco/presence/pkg/storage/postgres"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("PRESENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("PRESENCE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	It("rejects a malformed dsn before dialing", func() {
		_, err := postgres.NewDriver(context.Background(), "postgres://presence@localhost:5432/presence?sslmode=sometimes")
		Expect(err).To(MatchError(ContainSubstring("parsing postgres dsn")))
	})

	testutils.DescribeStorageDriver(func(ctx context.Context) storage.Driver {
		driver, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		for _, t := range migrate.Tables {
			_, err := driver.DB().ExecContext(ctx, "DELETE FROM "+t.Name)
			Expect(err).NotTo(HaveOccurred())
		}
		return driver
	})
})
