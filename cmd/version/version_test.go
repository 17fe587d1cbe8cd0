package versioncmder_test

import (
	"bytes"
	"encoding/json"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	versioncmder "github.com/papercomputeco/presence/cmd/version"
)

var _ = Describe("Version Command", func() {
	execute := func(args ...string) (string, error) {
		out := &bytes.Buffer{}
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	It("prints version, sha, build time and platform", func() {
		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("Version:  dev\nSha:      HEAD\nBuilt at: dev\n"))
		Expect(out).To(ContainSubstring(runtime.GOOS + "/" + runtime.GOARCH))
	})

	It("prints only the version with --short", func() {
		out, err := execute("--short")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("dev\n"))
	})

	It("prints JSON with --json", func() {
		out, err := execute("--json")
		Expect(err).NotTo(HaveOccurred())

		var info versioncmder.Info
		Expect(json.Unmarshal([]byte(out), &info)).To(Succeed())
		Expect(info).To(Equal(versioncmder.Current()))
	})

	It("refuses --short with --json", func() {
		_, err := execute("--short", "--json")
		Expect(err).To(HaveOccurred())
	})
})
