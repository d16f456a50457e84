// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/vtufest/festreg/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(migrator.Close()).To(Succeed()) })

		// Other containers may have migrated the shared database already.
		Expect(migrator.Down()).To(Succeed())
	})

	It("starts at version zero with everything pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Pending).To(HaveLen(4))
	})

	It("applies every migration and is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Up()).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(4)))
		Expect(dirty).To(BeFalse())
	})

	It("steps back and forward", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(4)))
	})

	It("rolls everything back and re-applies", func() {
		Expect(migrator.Down()).To(Succeed())
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Applied).To(BeEmpty())

		Expect(migrator.Up()).To(Succeed())
	})
})

var _ = Describe("Schema constraints", Ordered, func() {
	var (
		ctx  context.Context
		pool *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, store.PoolConfig{URL: connStr, ConnectAttempts: 3}, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)

		Expect(store.PingCheck(pool, time.Second)(ctx)).To(Succeed())
	})

	uniqueViolation := func(err error) bool {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return false
		}
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	var accountID int64

	It("rejects a second account with the same email", func() {
		var collegeID int64
		err := pool.QueryRow(ctx,
			`INSERT INTO colleges (code, name) VALUES ('1SI', 'Siddaganga Institute') RETURNING id`).
			Scan(&collegeID)
		Expect(err).NotTo(HaveOccurred())

		err = pool.QueryRow(ctx, `
			INSERT INTO accounts (kind, identifier, name, email, password_hash, role, college_id)
			VALUES ('student', '1SI22CS001', 'Asha', 'asha@example.com', 'x', 'STUDENT', $1)
			RETURNING id`, collegeID).Scan(&accountID)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `
			INSERT INTO accounts (kind, identifier, name, email, password_hash, role, college_id)
			VALUES ('student', '1SI22CS002', 'Asha K', 'asha@example.com', 'x', 'STUDENT', $1)`, collegeID)
		Expect(uniqueViolation(err)).To(BeTrue())
	})

	It("allows one unused reset token per account", func() {
		insert := `INSERT INTO password_reset_tokens (id, account_id, token_hash, purpose, expires_at)
			VALUES ($1, $2, 'h', 'FORGOT_PASSWORD', now() + interval '15 minutes')`
		_, err := pool.Exec(ctx, insert, "01JM0000000000000000000001", accountID)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, insert, "01JM0000000000000000000002", accountID)
		Expect(uniqueViolation(err)).To(BeTrue())

		_, err = pool.Exec(ctx,
			`UPDATE password_reset_tokens SET used_at = now() WHERE id = $1`, "01JM0000000000000000000001")
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, insert, "01JM0000000000000000000002", accountID)
		Expect(err).NotTo(HaveOccurred())
	})
})
