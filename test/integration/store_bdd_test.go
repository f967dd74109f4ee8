//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
	"github.com/eliteGoblin/focusd/app_lock/test/fixtures"
)

var _ = Describe("Rule store", func() {
	var (
		ctx    context.Context
		tmpDir string
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tmpDir, err = os.MkdirTemp("", "applock-store-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("export and import", func() {
		It("moves every rule between two stores", func() {
			src, err := infra.OpenStore(filepath.Join(tmpDir, "src"))
			Expect(err).NotTo(HaveOccurred())
			defer src.Close()
			for _, rule := range fixtures.Rules() {
				Expect(src.SaveRule(ctx, rule)).To(Succeed())
			}

			file := filepath.Join(tmpDir, "rules.json")
			n, err := infra.ExportRules(ctx, src, file)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(fixtures.Rules())))

			dst, err := infra.OpenStore(filepath.Join(tmpDir, "dst"))
			Expect(err).NotTo(HaveOccurred())
			defer dst.Close()

			n, err = infra.ImportRules(ctx, dst, file, policy.ValidateRule)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(fixtures.Rules())))

			for _, want := range fixtures.Rules() {
				got, err := dst.GetRule(ctx, want.PackageName)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).NotTo(BeNil())
				Expect(got.PermanentLock).To(Equal(want.PermanentLock))
				Expect(got.LockDates).To(Equal(want.LockDates))
				Expect(got.LockStartTime).To(Equal(want.LockStartTime))
				Expect(got.LockEndTime).To(Equal(want.LockEndTime))
			}
		})
	})

	Describe("reopening", func() {
		It("keeps rules, session and device ID across restarts", func() {
			store, err := infra.OpenStore(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.SaveRule(ctx, fixtures.Rules()[0])).To(Succeed())
			Expect(store.SetAuthToken("tok")).To(Succeed())
			deviceID, err := store.DeviceID()
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Close()).To(Succeed())

			reopened, err := infra.OpenStore(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			rule, err := reopened.GetRule(ctx, fixtures.PermanentApp)
			Expect(err).NotTo(HaveOccurred())
			Expect(rule).NotTo(BeNil())

			token, err := reopened.AuthToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok"))

			again, err := reopened.DeviceID()
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(deviceID))
		})
	})
})
