// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vtufest/festreg/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockAccountRepository is a mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t testingT) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAccountRepository) GetByIdentifier(ctx context.Context, kind auth.AccountKind, identifier string) (*auth.Account, error) {
	ret := m.Called(ctx, kind, identifier)
	account, _ := ret.Get(0).(*auth.Account)
	return account, ret.Error(1)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	ret := m.Called(ctx, id)
	account, _ := ret.Get(0).(*auth.Account)
	return account, ret.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) Exists(ctx context.Context, kind auth.AccountKind, identifier, email, phone string) (bool, error) {
	ret := m.Called(ctx, kind, identifier, email, phone)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockAccountRepository) RehashPassword(ctx context.Context, id int64, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockAccountRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// MockCollegeRepository is a mock of auth.CollegeRepository.
type MockCollegeRepository struct {
	mock.Mock
}

// NewMockCollegeRepository creates a mock that asserts its expectations on cleanup.
func NewMockCollegeRepository(t testingT) *MockCollegeRepository {
	m := &MockCollegeRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCollegeRepository) Get(ctx context.Context, id int64) (*auth.College, error) {
	ret := m.Called(ctx, id)
	college, _ := ret.Get(0).(*auth.College)
	return college, ret.Error(1)
}

func (m *MockCollegeRepository) Upsert(ctx context.Context, college *auth.College) error {
	return m.Called(ctx, college).Error(0)
}

// MockResetTokenRepository is a mock of auth.ResetTokenRepository.
type MockResetTokenRepository struct {
	mock.Mock
}

// NewMockResetTokenRepository creates a mock that asserts its expectations on cleanup.
func NewMockResetTokenRepository(t testingT) *MockResetTokenRepository {
	m := &MockResetTokenRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockResetTokenRepository) GetActive(ctx context.Context, accountID int64) (*auth.ResetToken, error) {
	ret := m.Called(ctx, accountID)
	token, _ := ret.Get(0).(*auth.ResetToken)
	return token, ret.Error(1)
}

func (m *MockResetTokenRepository) LockAccount(ctx context.Context, accountID int64) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *MockResetTokenRepository) MarkUsed(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	ret := m.Called(ctx, accountID, at)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

func (m *MockResetTokenRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ret := m.Called(ctx, cutoff)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

// MockAttemptStore is a mock of auth.AttemptStore.
type MockAttemptStore struct {
	mock.Mock
}

// NewMockAttemptStore creates a mock that asserts its expectations on cleanup.
func NewMockAttemptStore(t testingT) *MockAttemptStore {
	m := &MockAttemptStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAttemptStore) Get(ctx context.Context, identifier string) (*auth.LoginAttempt, error) {
	ret := m.Called(ctx, identifier)
	attempt, _ := ret.Get(0).(*auth.LoginAttempt)
	return attempt, ret.Error(1)
}

func (m *MockAttemptStore) RecordFailure(ctx context.Context, identifier string, policy auth.RateLimitPolicy, now time.Time) (*auth.LoginAttempt, error) {
	ret := m.Called(ctx, identifier, policy, now)
	attempt, _ := ret.Get(0).(*auth.LoginAttempt)
	return attempt, ret.Error(1)
}

func (m *MockAttemptStore) Reset(ctx context.Context, identifier string) error {
	return m.Called(ctx, identifier).Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(secret string) (string, error) {
	ret := m.Called(secret)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(secret, digest string) (bool, error) {
	ret := m.Called(secret, digest)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(digest string) bool {
	return m.Called(digest).Bool(0)
}

func (m *MockPasswordHasher) MinLength() int {
	return m.Called().Int(0)
}

// MockAuditWriter is a mock of auth.AuditWriter.
type MockAuditWriter struct {
	mock.Mock
}

// NewMockAuditWriter creates a mock that asserts its expectations on cleanup.
func NewMockAuditWriter(t testingT) *MockAuditWriter {
	m := &MockAuditWriter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAuditWriter) Write(ctx context.Context, entry auth.AuditEntry) error {
	return m.Called(ctx, entry).Error(0)
}

// MockResetNotifier is a mock of auth.ResetNotifier.
type MockResetNotifier struct {
	mock.Mock
}

// NewMockResetNotifier creates a mock that asserts its expectations on cleanup.
func NewMockResetNotifier(t testingT) *MockResetNotifier {
	m := &MockResetNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockResetNotifier) NotifyPasswordReset(ctx context.Context, account *auth.Account, rawToken string, expiresAt time.Time) error {
	return m.Called(ctx, account, rawToken, expiresAt).Error(0)
}

// Transactor runs the callback directly and records how many transactions
// were opened. Err, when set, is returned instead of running the callback.
type Transactor struct {
	Calls int
	Err   error
}

// InTransaction implements auth.Transactor.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.Calls++
	if t.Err != nil {
		return t.Err
	}
	return fn(ctx)
}

var (
	_ auth.AccountRepository    = (*MockAccountRepository)(nil)
	_ auth.CollegeRepository    = (*MockCollegeRepository)(nil)
	_ auth.ResetTokenRepository = (*MockResetTokenRepository)(nil)
	_ auth.AttemptStore         = (*MockAttemptStore)(nil)
	_ auth.PasswordHasher       = (*MockPasswordHasher)(nil)
	_ auth.AuditWriter          = (*MockAuditWriter)(nil)
	_ auth.ResetNotifier        = (*MockResetNotifier)(nil)
	_ auth.Transactor           = (*Transactor)(nil)
)
