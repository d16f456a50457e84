// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/vtufest/festreg/internal/auth"
)

// clock is a settable time source shared by fakes and services.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memAttempts is an in-memory AttemptStore with the same semantics as the
// SQL upsert.
type memAttempts struct {
	mu   sync.Mutex
	rows map[string]auth.LoginAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{rows: map[string]auth.LoginAttempt{}}
}

func (m *memAttempts) Get(_ context.Context, identifier string) (*auth.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[identifier]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &row, nil
}

func (m *memAttempts) RecordFailure(_ context.Context, identifier string, policy auth.RateLimitPolicy, now time.Time) (*auth.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[identifier]
	row.Identifier = identifier
	row.Count++
	row.LastAttemptAt = now
	row.LockedUntil = nil
	if row.Count >= policy.MaxAttempts {
		until := now.Add(policy.Cooldown)
		row.LockedUntil = &until
	}
	m.rows[identifier] = row
	return &row, nil
}

func (m *memAttempts) Reset(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, identifier)
	return nil
}

// memResets is an in-memory ResetTokenRepository.
type memResets struct {
	mu     sync.Mutex
	tokens []*auth.ResetToken
	locks  []int64
}

func (m *memResets) LockAccount(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = append(m.locks, accountID)
	return nil
}

func (m *memResets) Create(_ context.Context, token *auth.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *token
	m.tokens = append(m.tokens, &stored)
	return nil
}

func (m *memResets) GetActive(_ context.Context, accountID int64) (*auth.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tokens) - 1; i >= 0; i-- {
		t := m.tokens[i]
		if t.AccountID == accountID && t.UsedAt == nil {
			found := *t
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memResets) MarkUsed(_ context.Context, accountID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.AccountID == accountID && t.UsedAt == nil {
			used := at
			t.UsedAt = &used
			n++
		}
	}
	return n, nil
}

func (m *memResets) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*auth.ResetToken
	var n int64
	for _, t := range m.tokens {
		dead := t.ExpiresAt.Before(cutoff) || (t.UsedAt != nil && t.UsedAt.Before(cutoff))
		if dead {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.tokens = kept
	return n, nil
}

func (m *memResets) unused(accountID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.AccountID == accountID && t.UsedAt == nil {
			n++
		}
	}
	return n
}

// memAccounts is an in-memory AccountRepository and CollegeRepository.
type memAccounts struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*auth.Account
	colleges map[int64]*auth.College
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		nextID:   100,
		accounts: map[int64]*auth.Account{},
		colleges: map[int64]*auth.College{},
	}
}

func (m *memAccounts) GetByIdentifier(_ context.Context, kind auth.AccountKind, identifier string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Kind == kind && a.Identifier == identifier {
			found := *a
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAccounts) GetByID(_ context.Context, id int64) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	found := *a
	return &found, nil
}

func (m *memAccounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	account.ID = m.nextID
	stored := *account
	m.accounts[account.ID] = &stored
	return nil
}

func (m *memAccounts) Exists(_ context.Context, kind auth.AccountKind, identifier, email, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if (a.Kind == kind && a.Identifier == identifier) || a.Email == email || a.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.ForcePasswordReset = false
	return nil
}

func (m *memAccounts) RehashPassword(_ context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (m *memAccounts) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.LastLoginAt = &at
	return nil
}

func (m *memAccounts) Get(_ context.Context, id int64) (*auth.College, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colleges[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	found := *c
	return &found, nil
}

func (m *memAccounts) Upsert(_ context.Context, college *auth.College) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if college.ID == 0 {
		college.ID = int64(len(m.colleges) + 1)
	}
	stored := *college
	m.colleges[college.ID] = &stored
	return nil
}

func (m *memAccounts) account(id int64) auth.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

// memAudit records audit entries.
type memAudit struct {
	mu      sync.Mutex
	entries []auth.AuditEntry
}

func (m *memAudit) Write(_ context.Context, entry auth.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// captureNotifier keeps the last delivered token.
type captureNotifier struct {
	mu    sync.Mutex
	token string
	count int
}

func (n *captureNotifier) NotifyPasswordReset(_ context.Context, _ *auth.Account, rawToken string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.token = rawToken
	n.count++
	return nil
}

// countingMetrics records outcome labels.
type countingMetrics struct {
	mu     sync.Mutex
	logins map[string]int
	regs   map[string]int
	resets map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{logins: map[string]int{}, regs: map[string]int{}, resets: map[string]int{}}
}

func (m *countingMetrics) LoginOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *countingMetrics) RegistrationOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[outcome]++
}

func (m *countingMetrics) ResetOutcome(stage, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[stage+":"+outcome]++
}

var (
	_ auth.AttemptStore         = (*memAttempts)(nil)
	_ auth.ResetTokenRepository = (*memResets)(nil)
	_ auth.AccountRepository    = (*memAccounts)(nil)
	_ auth.CollegeRepository    = (*memAccounts)(nil)
	_ auth.AuditWriter          = (*memAudit)(nil)
	_ auth.ResetNotifier        = (*captureNotifier)(nil)
	_ auth.MetricsRecorder      = (*countingMetrics)(nil)
)
