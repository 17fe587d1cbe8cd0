package sqlitevec_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/vector"
	"github.com/papercomputeco/presence/pkg/vector/sqlitevec"
)

func doc(n int, v float32) vector.Document {
	return vector.Document{
		ID:        fmt.Sprintf("post:sha%d", n),
		DraftID:   int64(n),
		Type:      "post",
		Text:      fmt.Sprintf("snippet %d", n),
		Embedding: []float32{v, v, v, v},
	}
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *sqlitevec.Driver
	)

	Describe("NewDriver", func() {
		It("returns an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{Dimensions: 4}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("returns an error when dimensions are not configured", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with an in-memory database", func() {
		BeforeEach(func() {
			ctx = context.Background()
			var err error
			driver, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Add(ctx, []vector.Document{doc(1, 0.1), doc(2, 0.2), doc(3, 0.3), doc(4, 0.4), doc(5, 0.5)})).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("accepts an empty batch", func() {
			Expect(driver.Add(ctx, nil)).To(Succeed())
		})

		It("returns the closest documents with their payload", func() {
			results, err := driver.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("post:sha3"))
			Expect(results[0].DraftID).To(Equal(int64(3)))
			Expect(results[0].Text).To(Equal("snippet 3"))
			for i := 1; i < len(results); i++ {
				Expect(results[i-1].Score).To(BeNumerically(">=", results[i].Score))
			}
		})

		It("defaults topK to 10", func() {
			results, err := driver.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))
		})

		It("replaces a document with the same ID", func() {
			updated := doc(1, 0.9)
			updated.Text = "rewritten"
			Expect(driver.Add(ctx, []vector.Document{updated})).To(Succeed())

			got, err := driver.Get(ctx, []string{"post:sha1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Text).To(Equal("rewritten"))
			Expect(got[0].Embedding).To(Equal([]float32{0.9, 0.9, 0.9, 0.9}))

			results, err := driver.Query(ctx, []float32{0.9, 0.9, 0.9, 0.9}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].ID).To(Equal("post:sha1"))
		})

		It("skips unknown IDs on Get", func() {
			got, err := driver.Get(ctx, []string{"post:sha2", "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))

			got, err = driver.Get(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("removes deleted documents from query results", func() {
			Expect(driver.Delete(ctx, []string{"post:sha3", "missing"})).To(Succeed())

			results, err := driver.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))
			for _, r := range results {
				Expect(r.ID).NotTo(Equal("post:sha3"))
			}
		})
	})
})
