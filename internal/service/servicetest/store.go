// Package servicetest provides in-memory implementations of the service
// stores with the same semantics as the Postgres repositories.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/repository"
)

// Faults makes named store methods fail
type Faults struct {
	mu   sync.Mutex
	errs map[string]error
}

// Set makes method return err until cleared with a nil err
func (f *Faults) Set(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

func (f *Faults) get(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

// AttemptStore is an in-memory login attempt store
type AttemptStore struct {
	Faults

	// BeforeBlock runs at the start of BlockIP, outside the store lock
	BeforeBlock func(ip string)

	mu   sync.Mutex
	rows []model.LoginAttempt
}

// NewAttemptStore creates an empty AttemptStore
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

// Seed inserts rows as given, including their Blocked flag
func (s *AttemptStore) Seed(rows ...model.LoginAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

// All returns a copy of every stored row
func (s *AttemptStore) All() []model.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LoginAttempt(nil), s.rows...)
}

func (s *AttemptStore) Create(_ context.Context, a *model.LoginAttempt) error {
	if err := s.get("Create"); err != nil {
		return err
	}
	if utf8.RuneCountInString(a.Email) > 255 {
		return errors.New("value too long for type character varying(255)")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *a
	row.Blocked = false
	s.rows = append(s.rows, row)
	return nil
}

func (s *AttemptStore) CountFailuresByIP(_ context.Context, ip string, since time.Time) (int, error) {
	if err := s.get("CountFailuresByIP"); err != nil {
		return 0, err
	}
	return s.count(func(r model.LoginAttempt) bool {
		return r.IPAddress == ip && !r.Success && r.CreatedAt.After(since)
	}), nil
}

func (s *AttemptStore) CountFailuresByEmail(_ context.Context, email string, since time.Time) (int, error) {
	if err := s.get("CountFailuresByEmail"); err != nil {
		return 0, err
	}
	return s.count(func(r model.LoginAttempt) bool {
		return r.Email == email && !r.Success && r.CreatedAt.After(since)
	}), nil
}

func (s *AttemptStore) HasBlocked(_ context.Context, ip string) (bool, error) {
	if err := s.get("HasBlocked"); err != nil {
		return false, err
	}
	return s.count(func(r model.LoginAttempt) bool {
		return r.IPAddress == ip && r.Blocked
	}) > 0, nil
}

func (s *AttemptStore) AggregateUnblockedFailures(_ context.Context, since time.Time, min int) ([]model.IPFailureCount, error) {
	if err := s.get("AggregateUnblockedFailures"); err != nil {
		return nil, err
	}
	counts := s.group(func(r model.LoginAttempt) bool {
		return !r.Success && !r.Blocked && r.CreatedAt.After(since)
	})
	out := []model.IPFailureCount{}
	for _, c := range counts {
		if c.Count >= min {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *AttemptStore) BlockIP(_ context.Context, ip string) (int64, error) {
	if s.BeforeBlock != nil {
		s.BeforeBlock(ip)
	}
	if err := s.get("BlockIP"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.rows {
		if s.rows[i].IPAddress == ip && !s.rows[i].Blocked {
			s.rows[i].Blocked = true
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) UnblockIP(_ context.Context, ip string) (int64, error) {
	if err := s.get("UnblockIP"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, r := range s.rows {
		if r.IPAddress == ip && r.FailureReason != nil && *r.FailureReason == model.FailureReasonManualBlock {
			continue
		}
		if r.IPAddress == ip && r.Blocked {
			r.Blocked = false
			n++
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}

func (s *AttemptStore) InsertBlockMarker(_ context.Context, id, ip string, at time.Time) error {
	if err := s.get("InsertBlockMarker"); err != nil {
		return err
	}
	reason := model.FailureReasonManualBlock
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, model.LoginAttempt{
		ID:            id,
		IPAddress:     ip,
		FailureReason: &reason,
		Blocked:       true,
		CreatedAt:     at,
	})
	return nil
}

func (s *AttemptStore) List(_ context.Context, filter model.LoginAttemptFilter, limit int) ([]*model.LoginAttempt, error) {
	if err := s.get("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []*model.LoginAttempt
	for _, r := range s.rows {
		if strings.Contains(r.IPAddress, filter.IPAddressContains) {
			row := r
			out = append(out, &row)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AttemptStore) CountSince(_ context.Context, since time.Time) (int, int, error) {
	if err := s.get("CountSince"); err != nil {
		return 0, 0, err
	}
	total := s.count(func(r model.LoginAttempt) bool { return r.CreatedAt.After(since) })
	failed := s.count(func(r model.LoginAttempt) bool { return !r.Success && r.CreatedAt.After(since) })
	return total, failed, nil
}

func (s *AttemptStore) TopFailingIPs(_ context.Context, since time.Time, limit int) ([]model.IPFailureCount, error) {
	if err := s.get("TopFailingIPs"); err != nil {
		return nil, err
	}
	counts := s.group(func(r model.LoginAttempt) bool { return !r.Success && r.CreatedAt.After(since) })
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

func (s *AttemptStore) count(match func(model.LoginAttempt) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if match(r) {
			n++
		}
	}
	return n
}

// group counts matching rows per address, largest first
func (s *AttemptStore) group(match func(model.LoginAttempt) bool) []model.IPFailureCount {
	s.mu.Lock()
	byIP := make(map[string]int)
	for _, r := range s.rows {
		if match(r) {
			byIP[r.IPAddress]++
		}
	}
	s.mu.Unlock()

	out := make([]model.IPFailureCount, 0, len(byIP))
	for ip, n := range byIP {
		out = append(out, model.IPFailureCount{IPAddress: ip, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IPAddress < out[j].IPAddress
	})
	return out
}

// EventStore is an in-memory security event store
type EventStore struct {
	Faults

	mu     sync.Mutex
	events []*model.SecurityEvent
}

// NewEventStore creates an empty EventStore
func NewEventStore() *EventStore {
	return &EventStore{}
}

// All returns copies of every stored event in insertion order
func (s *EventStore) All() []model.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SecurityEvent, len(s.events))
	for i, ev := range s.events {
		out[i] = *ev
	}
	return out
}

// Seed inserts events as given
func (s *EventStore) Seed(events ...model.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		ev := events[i]
		s.events = append(s.events, &ev)
	}
}

func (s *EventStore) Create(ctx context.Context, ev *model.SecurityEvent) error {
	if err := s.get("Create"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *ev
	s.events = append(s.events, &stored)
	return nil
}

func (s *EventStore) GetByID(_ context.Context, id string) (*model.SecurityEvent, error) {
	if err := s.get("GetByID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			out := *ev
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *EventStore) List(_ context.Context, filter model.SecurityEventFilter, limit int) ([]*model.SecurityEvent, error) {
	if err := s.get("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := []*model.SecurityEvent{}
	for _, ev := range s.events {
		if filter.Severity != "" && ev.Severity != filter.Severity {
			continue
		}
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EventStore) Resolve(_ context.Context, id, resolvedBy string, notes *string, at time.Time) (*model.SecurityEvent, error) {
	if err := s.get("Resolve"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID != id {
			continue
		}
		if ev.Resolved {
			return nil, repository.ErrAlreadyResolved
		}
		ev.Resolved = true
		ev.ResolvedBy = &resolvedBy
		ev.ResolvedAt = &at
		ev.Notes = notes
		out := *ev
		return &out, nil
	}
	return nil, repository.ErrNotFound
}

func (s *EventStore) CountSince(_ context.Context, since time.Time) (int, int, error) {
	if err := s.get("CountSince"); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var total, critical int
	for _, ev := range s.events {
		if !ev.CreatedAt.After(since) {
			continue
		}
		total++
		if ev.Severity == model.SeverityCritical {
			critical++
		}
	}
	return total, critical, nil
}

func (s *EventStore) TopTypesSince(_ context.Context, since time.Time, limit int) ([]model.TypeCount, error) {
	if err := s.get("TopTypesSince"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	byType := make(map[model.EventType]int)
	for _, ev := range s.events {
		if ev.CreatedAt.After(since) {
			byType[ev.Type]++
		}
	}
	s.mu.Unlock()

	out := make([]model.TypeCount, 0, len(byType))
	for t, n := range byType {
		out = append(out, model.TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UserStore is an in-memory account store
type UserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

// NewUserStore creates a UserStore holding users
func NewUserStore(users ...*model.User) *UserStore {
	s := &UserStore{users: make(map[string]*model.User)}
	for _, u := range users {
		s.users[u.Email] = u
	}
	return s
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

// AuditStore is an in-memory audit log
type AuditStore struct {
	Faults

	mu      sync.Mutex
	entries []model.AuditLog
}

// NewAuditStore creates an empty AuditStore
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// All returns a copy of every entry in insertion order
func (s *AuditStore) All() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.entries...)
}

func (s *AuditStore) Create(_ context.Context, entry *model.AuditLog) error {
	if err := s.get("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *AuditStore) ListByResource(_ context.Context, resourceType, resourceID string, limit int) ([]*model.AuditLog, error) {
	if err := s.get("ListByResource"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.AuditLog{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if e.ResourceType == resourceType && e.ResourceID != nil && *e.ResourceID == resourceID {
			out = append(out, &e)
		}
	}
	return out, nil
}

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock stopped at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
