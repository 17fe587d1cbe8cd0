package servecmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/papercomputeco/presence/cmd/presence/serve"
)

var _ = Describe("Serve Command", func() {
	It("registers listen, store and knowledge flags", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{"listen", "sqlite", "storage-driver", "vector-store-provider", "embedding-model", "no-knowledge"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8082"))
	})

	It("fails on an unknown storage driver before listening", func() {
		cmd := servecmder.NewServeCmd()
		cmd.PersistentFlags().BoolP("debug", "d", false, "")
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config-dir", GinkgoT().TempDir(), "--storage-driver", "dynamo"})

		Expect(cmd.Execute()).To(MatchError(ContainSubstring(`unsupported storage.driver "dynamo"`)))
	})

	It("requires a vector store when knowledge recall is enabled", func() {
		cmd := servecmder.NewServeCmd()
		cmd.PersistentFlags().BoolP("debug", "d", false, "")
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config-dir", GinkgoT().TempDir(), "--storage-driver", "memory"})
		GinkgoT().Setenv("PRESENCE_KNOWLEDGE_ENABLED", "true")

		Expect(cmd.Execute()).To(MatchError(ContainSubstring("vector_store.provider")))
	})
})
