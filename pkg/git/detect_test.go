package git_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/git"
)

func initRepo(dir string) {
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "dev@example.com"},
		{"config", "user.name", "dev"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), string(out))
	}
}

var _ = Describe("RepoName", func() {
	It("returns the repository name when inside a git repo", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "blog")
		Expect(os.Mkdir(dir, 0o755)).To(Succeed())
		initRepo(dir)

		Expect(git.RepoName(dir)).To(Equal("blog"))
	})

	It("names the repository from a subdirectory", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "presence")
		sub := filepath.Join(dir, "pkg", "gate")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())
		initRepo(dir)

		Expect(git.RepoName(sub)).To(Equal("presence"))
	})

	It("falls back to the directory name outside a repo", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "plain")
		Expect(os.Mkdir(dir, 0o755)).To(Succeed())
		Expect(git.RepoName(dir)).To(Equal("plain"))
	})
})

var _ = Describe("RepoNames", func() {
	It("resolves each path once and repeats the answer", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "cache")
		sub := filepath.Join(dir, "cmd")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())
		initRepo(dir)

		var names git.RepoNames
		Expect(names.Name(sub)).To(Equal("cache"))

		Expect(os.RemoveAll(filepath.Join(dir, ".git"))).To(Succeed())
		Expect(names.Name(sub)).To(Equal("cache"))
	})

	It("uses the base name of paths that no longer exist", func() {
		var names git.RepoNames
		Expect(names.Name("/home/dev/gone/project/")).To(Equal("project"))
	})
})

var _ = Describe("Repo", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		initRepo(dir)
	})

	It("rejects directories outside a working tree", func() {
		_, err := git.Open(ctx, GinkgoT().TempDir())
		Expect(err).To(HaveOccurred())
	})

	It("adds and commits files", func() {
		repo, err := git.Open(ctx, dir)
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<ul class=\"posts\"></ul>"), 0o600)).To(Succeed())
		Expect(repo.Add(ctx, "index.html")).To(Succeed())
		Expect(repo.Commit(ctx, "Add post")).To(Succeed())

		head, err := repo.Head(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(head).To(HaveLen(40))

		Expect(repo.Commit(ctx, "again")).To(MatchError(git.ErrNothingToCommit))
	})

	It("reports push failures with git's message", func() {
		repo, err := git.Open(ctx, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Push(ctx)).To(MatchError(ContainSubstring("git push")))
	})
})
