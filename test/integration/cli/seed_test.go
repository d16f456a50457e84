// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

//go:build integration

package cli_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const seedYAML = `colleges:
  - code: 1BM
    name: BMS College of Engineering
  - code: 4SF
    name: Sahyadri College
    active: false
staff:
  - name: Festival Admin
    email: Admin@Fest.example.com
    phone: "9000000001"
    role: ADMIN
  - name: Team Manager
    email: manager@fest.example.com
    phone: "9000000002"
    role: TEAM_MANAGER
    college: 1BM
`

var _ = Describe("Migrate and seed commands", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	dbEnv := func() []string {
		return []string{
			"DATABASE_URL=" + env.connStr,
			"FESTREG_DEFAULT_STAFF_PASSWORD=Welcome@2026",
		}
	}

	Describe("migrate", func() {
		It("applies every migration and reports the version", func() {
			out, err := festreg(ctx, dbEnv(), "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", out)

			out, err = festreg(ctx, dbEnv(), "migrate", "version")
			Expect(err).NotTo(HaveOccurred(), "migrate version failed: %s", out)
			Expect(out).To(ContainSubstring("Schema version: 4"))
			Expect(out).NotTo(ContainSubstring("dirty"))
		})

		It("rolls back one step by default", func() {
			out, err := festreg(ctx, dbEnv(), "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", out)

			out, err = festreg(ctx, dbEnv(), "migrate", "down")
			Expect(err).NotTo(HaveOccurred(), "migrate down failed: %s", out)

			out, err = festreg(ctx, dbEnv(), "migrate", "version")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Schema version: 3"))
		})
	})

	Describe("seed", func() {
		BeforeEach(func() {
			out, err := festreg(ctx, dbEnv(), "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", out)
		})

		It("creates colleges and staff with a forced password reset", func() {
			out, err := festreg(ctx, dbEnv(), "seed", "--file", writeFile("seed.yaml", seedYAML))
			Expect(err).NotTo(HaveOccurred(), "seed failed: %s", out)
			Expect(out).To(ContainSubstring("Seeding complete: 2 colleges, 2 staff created, 0 staff skipped"))

			var active bool
			err = env.pool.QueryRow(ctx, "SELECT active FROM colleges WHERE code = $1", "4SF").Scan(&active)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeFalse())

			var role string
			var forced bool
			err = env.pool.QueryRow(ctx,
				"SELECT role, force_password_reset FROM accounts WHERE email = $1",
				"admin@fest.example.com",
			).Scan(&role, &forced)
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(Equal("ADMIN"))
			Expect(forced).To(BeTrue())
		})

		It("is idempotent (running twice skips existing staff)", func() {
			path := writeFile("seed.yaml", seedYAML)
			out, err := festreg(ctx, dbEnv(), "seed", "--file", path)
			Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", out)

			out, err = festreg(ctx, dbEnv(), "seed", "--file", path)
			Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", out)
			Expect(out).To(ContainSubstring("already exists, skipping"))
			Expect(out).To(ContainSubstring("0 staff created, 2 staff skipped"))

			var count int
			err = env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts WHERE kind = 'staff'").Scan(&count)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
		})
	})

	Describe("Error handling", func() {
		It("fails when DATABASE_URL is missing", func() {
			out, err := festreg(ctx, nil, "seed", "--file", writeFile("seed.yaml", seedYAML))
			Expect(err).To(HaveOccurred())
			Expect(out).To(ContainSubstring("DATABASE_URL"))
		})
	})
})
