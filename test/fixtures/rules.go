// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Package names used by the fixture rules.
const (
	PermanentApp = "com.example.permanent"
	NightApp     = "com.example.night"
	WeekendApp   = "com.example.weekend"
	MonthlyApp   = "com.example.monthly"
	ExamApp      = "com.example.exam"
	FreeApp      = "com.example.free"
)

// Rules returns one rule per lock variant. Dates assume evaluation on
// Saturday 2024-06-15.
func Rules() []domain.TrackedAppRule {
	return []domain.TrackedAppRule{
		{PackageName: PermanentApp, DisplayName: "Permanent", PermanentLock: true},
		{PackageName: NightApp, DisplayName: "Night", LockStartTime: "21:00", LockEndTime: "07:00"},
		{
			PackageName: WeekendApp,
			DisplayName: "Weekend",
			LockDates:   []string{"2024-03-16", "2024-03-17"}, // Saturday, Sunday
			Recurrence:  domain.RecurrenceByWeekday,
		},
		{
			PackageName: MonthlyApp,
			DisplayName: "Monthly",
			LockDates:   []string{"2024-01-15", "2024-01-20"},
			Recurrence:  domain.RecurrenceByDate,
		},
		{
			// Exam day passed; the stale date list keeps the permanent flag silent.
			PackageName:   ExamApp,
			DisplayName:   "Exam",
			PermanentLock: true,
			LockDates:     []string{"2024-05-01"},
			Recurrence:    domain.RecurrenceOneShot,
		},
		{PackageName: FreeApp, DisplayName: "Free"},
	}
}

// ActivityServer is a fake guardian server recording activity reports.
type ActivityServer struct {
	*httptest.Server

	mu      sync.Mutex
	entries []domain.ActivityEntry
	tokens  []string
}

// NewActivityServer starts a server accepting POST /device-activity.
func NewActivityServer() *ActivityServer {
	s := &ActivityServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *ActivityServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/device-activity" {
		http.NotFound(w, r)
		return
	}

	var entry domain.ActivityEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.tokens = append(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Entries returns the reports received so far.
func (s *ActivityServer) Entries() []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActivityEntry(nil), s.entries...)
}

// Tokens returns the bearer tokens received so far.
func (s *ActivityServer) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}
