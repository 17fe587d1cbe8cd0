package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/dotdir"
)

// chdir moves into dir until the current test ends.
func chdir(dir string) {
	orig, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())
	Expect(os.Chdir(dir)).To(Succeed())
	DeferCleanup(func() { _ = os.Chdir(orig) })
}

var _ = Describe("Manager", func() {
	var (
		tmpDir  string
		project string
		home    string
		m       *dotdir.Manager
	)

	BeforeEach(func() {
		var err error
		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		project = filepath.Join(tmpDir, "project")
		home = filepath.Join(tmpDir, "home")
		Expect(os.MkdirAll(project, 0o755)).To(Succeed())
		Expect(os.MkdirAll(home, 0o755)).To(Succeed())

		GinkgoT().Setenv("HOME", home)
		GinkgoT().Setenv(dotdir.EnvHome, "")
		chdir(project)

		m = dotdir.NewManager()
	})

	Describe("Target", func() {
		It("creates a private override directory", func() {
			dir := filepath.Join(tmpDir, "override")
			Expect(m.Target(dir)).To(Equal(dir))

			info, err := os.Stat(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o700)))
		})

		It("prefers the override over PRESENCE_HOME and a local directory", func() {
			Expect(os.Mkdir(filepath.Join(project, ".presence"), 0o755)).To(Succeed())
			GinkgoT().Setenv(dotdir.EnvHome, filepath.Join(tmpDir, "cron"))

			override := filepath.Join(tmpDir, "override")
			Expect(m.Target(override)).To(Equal(override))
		})

		It("uses PRESENCE_HOME before the local directory", func() {
			Expect(os.Mkdir(filepath.Join(project, ".presence"), 0o755)).To(Succeed())
			cron := filepath.Join(tmpDir, "cron")
			GinkgoT().Setenv(dotdir.EnvHome, cron)

			Expect(m.Target("")).To(Equal(cron))
			Expect(cron).To(BeADirectory())
		})

		It("finds ./.presence in the working directory", func() {
			local := filepath.Join(project, ".presence")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			Expect(os.Mkdir(filepath.Join(home, ".presence"), 0o755)).To(Succeed())

			Expect(m.Target("")).To(Equal(local))
		})

		It("falls back to ~/.presence", func() {
			global := filepath.Join(home, ".presence")
			Expect(os.Mkdir(global, 0o755)).To(Succeed())

			Expect(m.Target("")).To(Equal(global))
		})

		It("returns empty when nothing exists", func() {
			Expect(m.Target("")).To(BeEmpty())
		})
	})

	Describe("Init", func() {
		It("creates .presence under the given parent", func() {
			Expect(m.Init(tmpDir)).To(Equal(filepath.Join(tmpDir, ".presence")))
			Expect(filepath.Join(tmpDir, ".presence")).To(BeADirectory())
		})

		It("defaults to the home directory", func() {
			Expect(m.Init("")).To(Equal(filepath.Join(home, ".presence")))
		})
	})

	Describe("DBPath", func() {
		It("places the database inside the resolved directory", func() {
			Expect(m.DBPath(tmpDir)).To(Equal(filepath.Join(tmpDir, dotdir.DBFile)))
		})

		It("is empty when no directory resolves", func() {
			Expect(m.DBPath("")).To(BeEmpty())
		})
	})

	It("keeps the recall store next to the event store", func() {
		Expect(m.KnowledgePath(tmpDir)).To(Equal(filepath.Join(tmpDir, dotdir.KnowledgeFile)))
	})
})
