//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
	"github.com/eliteGoblin/focusd/app_lock/test/fixtures"
)

// lockRecord is one call made on recordingLockScreen.
type lockRecord struct {
	Package  string
	Criteria []string
}

type recordingLockScreen struct {
	mu    sync.Mutex
	locks []lockRecord
}

func (l *recordingLockScreen) ShowPermanentLock(ctx context.Context, target domain.ApplicationIdentity) error {
	return l.ShowScheduledLock(ctx, target, nil)
}

func (l *recordingLockScreen) ShowScheduledLock(ctx context.Context, target domain.ApplicationIdentity, criteria []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = append(l.locks, lockRecord{Package: target.PackageName, Criteria: criteria})
	return nil
}

func (l *recordingLockScreen) Locks() []lockRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lockRecord(nil), l.locks...)
}

var _ = Describe("Enforcement pipeline", func() {
	// Saturday night
	saturdayNight := time.Date(2024, 6, 15, 22, 30, 0, 0, time.UTC)

	var (
		ctx      context.Context
		tmpDir   string
		store    *infra.EncryptedStore
		server   *fixtures.ActivityServer
		lock     *recordingLockScreen
		enforcer *usecase.EnforcerImpl
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()

		tmpDir, err = os.MkdirTemp("", "applock-integration-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		for _, rule := range fixtures.Rules() {
			Expect(store.SaveRule(ctx, rule)).To(Succeed())
		}
		Expect(store.SetAuthToken("guardian-token")).To(Succeed())

		server = fixtures.NewActivityServer()
		lock = &recordingLockScreen{}

		logger := zap.NewNop()
		activity := infra.NewActivityClient(infra.SyncConfig{ServerURL: server.URL, Timeout: 5 * time.Second}, logger)
		dispatcher := usecase.NewDispatcher(lock, activity, store, "applock", logger)
		enforcer = usecase.NewEnforcer(usecase.NewThrottleGate(domain.DefaultThrottleDelay), store, dispatcher, logger)
	})

	AfterEach(func() {
		enforcer.Wait()
		server.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	primary := func(pkg string, at time.Time) domain.ForegroundEvent {
		return domain.ForegroundEvent{Kind: domain.EventPrimary, PackageName: pkg, At: at}
	}

	DescribeTable("decisions from the encrypted store",
		func(pkg string, wantAction domain.DecisionAction, wantCriteria []string, wantMessage string) {
			result, err := enforcer.Enforce(ctx, primary(pkg, saturdayNight))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RuleFound).To(BeTrue())
			Expect(result.Outcome.Action).To(Equal(wantAction))
			if wantCriteria == nil {
				Expect(result.Outcome.MatchedCriteria).To(BeEmpty())
			} else {
				Expect(result.Outcome.MatchedCriteria).To(Equal(wantCriteria))
			}
			Expect(result.LogQueued).To(BeTrue())

			enforcer.Wait()
			entries := server.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].PackageName).To(Equal(pkg))
			Expect(entries[0].Description).To(Equal(wantMessage))
			Expect(entries[0].DeviceID).NotTo(BeEmpty())
			Expect(server.Tokens()).To(ConsistOf("guardian-token"))
		},
		Entry("permanent lock", fixtures.PermanentApp,
			domain.ActionBlockPermanent, nil, domain.LogMessageBlocked),
		Entry("overnight window", fixtures.NightApp,
			domain.ActionBlockScheduled, []string{"21:00", "07:00"}, domain.LogMessageBlocked),
		Entry("weekly on Saturday", fixtures.WeekendApp,
			domain.ActionBlockScheduled, []string{"Saturday", "Sunday"}, domain.LogMessageBlocked),
		Entry("monthly on the 15th", fixtures.MonthlyApp,
			domain.ActionBlockScheduled, []string{"June 15", "June 20"}, domain.LogMessageBlocked),
		Entry("past exam date silences permanent flag", fixtures.ExamApp,
			domain.ActionNone, nil, domain.LogMessageOpened),
		Entry("tracked without restrictions", fixtures.FreeApp,
			domain.ActionNone, nil, domain.LogMessageOpened),
	)

	Context("when the app is not tracked", func() {
		It("neither locks nor reports", func() {
			result, err := enforcer.Enforce(ctx, primary("com.example.unknown", saturdayNight))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RuleFound).To(BeFalse())
			Expect(result.Outcome.Action).To(Equal(domain.ActionNone))

			enforcer.Wait()
			Expect(lock.Locks()).To(BeEmpty())
			Expect(server.Entries()).To(BeEmpty())
		})
	})

	Context("when the session is logged out", func() {
		It("locks without reporting", func() {
			Expect(store.SetAuthToken("")).To(Succeed())

			result, err := enforcer.Enforce(ctx, primary(fixtures.PermanentApp, saturdayNight))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Dispatched).To(BeTrue())
			Expect(result.LogQueued).To(BeFalse())

			enforcer.Wait()
			Expect(server.Entries()).To(BeEmpty())
		})
	})

	Context("with a burst of content changes", func() {
		It("evaluates secondary events at most once per throttle delay", func() {
			var handled int
			for ms := 0; ms <= 5000; ms += 500 {
				ev := domain.ForegroundEvent{
					Kind:        domain.EventSecondary,
					PackageName: fixtures.PermanentApp,
					At:          saturdayNight.Add(time.Duration(ms) * time.Millisecond),
				}
				result, err := enforcer.Handle(ctx, ev)
				Expect(err).NotTo(HaveOccurred())
				if result != nil {
					handled++
					Expect(result.LogQueued).To(BeFalse())
				}
			}

			// admitted at 0 ms and 3000 ms
			Expect(handled).To(Equal(2))
			Expect(lock.Locks()).To(HaveLen(2))
			enforcer.Wait()
			Expect(server.Entries()).To(BeEmpty())
		})
	})

	Context("when the watcher reads forwarded events", func() {
		It("locks the permanent app and stops at end of input", func() {
			input := strings.Join([]string{
				"window_state_changed " + fixtures.PermanentApp,
				"view_clicked " + fixtures.PermanentApp,
				"window_state_changed com.example.unknown",
			}, "\n")

			logger := zap.NewNop()
			source := infra.NewLineEventSource(strings.NewReader(input), logger)
			watcher := daemon.NewWatcher(daemon.DefaultWatcherConfig(), source, enforcer, store,
				domain.Daemon{PID: os.Getpid(), Role: domain.RoleWatcher, StartedAt: time.Now(), AppVersion: "test"},
				logger)

			Expect(watcher.Run(ctx)).To(Succeed())

			Expect(lock.Locks()).To(ConsistOf(lockRecord{Package: fixtures.PermanentApp}))
			Expect(server.Entries()).To(HaveLen(1))

			entry, err := store.GetAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(entry).NotTo(BeNil())
			Expect(entry.WatcherPID).To(Equal(os.Getpid()))
		})
	})
})
