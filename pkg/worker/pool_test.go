package worker

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/activity"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

// newTestPool creates a worker pool backed by mock embedding and vector
// drivers. Callers should "wp.Close()" to drain enqueued jobs before
// asserting vector state.
func newTestPool() (*Pool, *testutils.MockEmbedder, *testutils.MockVectorDriver) {
	embedder := testutils.NewMockEmbedder()
	vd := testutils.NewMockVectorDriver()

	wp, err := NewPool(&Config{
		VectorDriver: vd,
		Embedder:     embedder,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, embedder, vd
}

func publishedDraft(key, body string) activity.ContentDraft {
	return activity.ContentDraft{
		ID:                7,
		Key:               key,
		Type:              activity.ContentPost,
		Body:              body,
		Scored:            true,
		Approved:          true,
		PublishedLocation: "https://x.com/dev/status/1",
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp       *Pool
		embedder *testutils.MockEmbedder
		vd       *testutils.MockVectorDriver
	)

	BeforeEach(func() {
		wp, embedder, vd = newTestPool()
	})

	It("requires an embedder and a vector driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Draft: publishedDraft("post:abc123", "shipped")})).To(BeTrue())
			wp.Close()
		})

		It("returns false once the queue is full", func() {
			vd2 := testutils.NewMockVectorDriver()
			full := &Pool{
				config: &Config{VectorDriver: vd2, Embedder: embedder, JobTimeout: defaultJobTimeout},
				queue:  make(chan Job, 1),
				logger: wp.logger,
			}
			Expect(full.Enqueue(Job{Draft: publishedDraft("a", "x")})).To(BeTrue())
			Expect(full.Enqueue(Job{Draft: publishedDraft("b", "y")})).To(BeFalse())
			wp.Close()
		})
	})

	Describe("indexing", func() {
		It("stores an embedding keyed by draft key once drained", func() {
			embedder.Embeddings["shipped the gate"] = []float32{1, 0, 0}
			wp.Enqueue(Job{Draft: publishedDraft("post:abc123", "  shipped the gate ")})
			wp.Close()

			docs, err := vd.Get(context.Background(), []string{"post:abc123"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].DraftID).To(Equal(int64(7)))
			Expect(docs[0].Type).To(Equal("post"))
			Expect(docs[0].Text).To(Equal("shipped the gate"))
			Expect(docs[0].Embedding).To(Equal([]float32{1, 0, 0}))
		})

		It("skips empty bodies and survives embedding failures", func() {
			embedder.FailOn = "broken"
			wp.Enqueue(Job{Draft: publishedDraft("post:a", "   ")})
			wp.Enqueue(Job{Draft: publishedDraft("post:b", "broken")})
			wp.Enqueue(Job{Draft: publishedDraft("post:c", "fine")})
			wp.Close()

			Expect(vd.Len()).To(Equal(1))
		})
	})

	It("tolerates repeated Close", func() {
		wp.Close()
		wp.Close()
	})
})
