package memory

import (
	"context"
	"sync"

	"optium/internal/core"
	ports "optium/internal/sheets"
)

// Store keeps the last written reports in memory. It backs the worker in
// dry-run mode and tests.
type Store struct {
	mu      sync.Mutex
	summary *core.SummaryReport
	monthly *core.MonthlyReport
	writes  int

	// Err, when set, is returned by every write.
	Err error
}

var _ ports.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) WriteSummary(_ context.Context, r core.SummaryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.summary = &r
	s.writes++
	return nil
}

func (s *Store) WriteMonthly(_ context.Context, r core.MonthlyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.monthly = &r
	s.writes++
	return nil
}

// Summary returns the last summary written, if any.
func (s *Store) Summary() (core.SummaryReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return core.SummaryReport{}, false
	}
	return *s.summary, true
}

// Monthly returns the last monthly breakdown written, if any.
func (s *Store) Monthly() (core.MonthlyReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monthly == nil {
		return core.MonthlyReport{}, false
	}
	return *s.monthly, true
}

// Writes counts successful writes of either sheet.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
