// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

//go:build integration

package integration_test

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/vtufest/festreg/internal/auth"
)

var phoneSeq atomic.Int64

// nextPhone returns a contact number no other test account uses.
func nextPhone() string {
	return fmt.Sprintf("9%09d", phoneSeq.Add(1))
}

func registerStudent(collegeID int64, usn, password string) int64 {
	resp := post("/register", map[string]any{
		"name":       "Student " + usn,
		"identifier": usn,
		"email":      usn + "@students.example.com",
		"phone":      nextPhone(),
		"collegeId":  collegeID,
		"password":   password,
	})
	ExpectWithOffset(1, resp.status).To(Equal(http.StatusCreated), string(resp.body))
	id, ok := resp.json()["accountId"].(float64)
	ExpectWithOffset(1, ok).To(BeTrue())
	return int64(id)
}

func login(identifier, password string) apiResponse {
	return post("/login", map[string]string{"identifier": identifier, "password": password})
}

var _ = Describe("Student accounts", func() {
	var collegeID int64

	BeforeEach(func() {
		collegeID = resetDatabase()
	})

	It("registers, logs in, and reads /me", func() {
		id := registerStudent(collegeID, "1bm22cs001", "festival-2026")

		resp := login("1BM22CS001", "festival-2026")
		Expect(resp.status).To(Equal(http.StatusOK), string(resp.body))
		session, _ := resp.json()["token"].(string)
		Expect(session).NotTo(BeEmpty())

		me := call(http.MethodGet, "/me", nil, session)
		Expect(me.status).To(Equal(http.StatusOK))
		body := me.json()
		Expect(body["accountId"]).To(BeEquivalentTo(id))
		Expect(body["identifier"]).To(Equal("1BM22CS001"))
		Expect(body["role"]).To(Equal(string(auth.RoleStudent)))
		Expect(body["collegeId"]).To(BeEquivalentTo(collegeID))

		var lastLogin *string
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT last_login_at::text FROM accounts WHERE id = $1`, id).Scan(&lastLogin)).To(Succeed())
		Expect(lastLogin).NotTo(BeNil())
	})

	It("rejects duplicates and unknown colleges", func() {
		registerStudent(collegeID, "1bm22cs002", "festival-2026")

		dup := post("/register", map[string]any{
			"name": "Copy", "identifier": "1BM22CS002", "email": "other@students.example.com", "phone": nextPhone(),
			"collegeId": collegeID, "password": "festival-2026",
		})
		Expect(dup.status).To(Equal(http.StatusConflict))
		Expect(dup.errorCode()).To(Equal(auth.CodeDuplicateAccount))

		tenant := post("/register", map[string]any{
			"name": "Lost", "identifier": "9ZZ22CS001", "email": "lost@students.example.com", "phone": nextPhone(),
			"collegeId": collegeID + 100, "password": "festival-2026",
		})
		Expect(tenant.status).To(Equal(http.StatusBadRequest))
		Expect(tenant.errorCode()).To(Equal(auth.CodeInvalidTenant))

		var audits int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT count(*) FROM audit_logs WHERE action = 'REGISTER_STUDENT'`).Scan(&audits)).To(Succeed())
		Expect(audits).To(Equal(1))
	})

	It("answers unknown identifiers and wrong passwords identically", func() {
		registerStudent(collegeID, "1bm22cs003", "festival-2026")

		wrong := login("1BM22CS003", "not-the-password")
		unknown := login("1BM22CS999", "not-the-password")
		Expect(wrong.status).To(Equal(http.StatusUnauthorized))
		Expect(unknown.status).To(Equal(http.StatusUnauthorized))
		Expect(wrong.body).To(Equal(unknown.body))
	})

	It("locks the identifier after five failures", func() {
		registerStudent(collegeID, "1bm22cs004", "festival-2026")

		for i := range 5 {
			resp := login("1BM22CS004", fmt.Sprintf("guess-%d-wrong", i))
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
		}

		locked := login("1BM22CS004", "festival-2026")
		Expect(locked.status).To(Equal(http.StatusTooManyRequests))
		Expect(locked.errorCode()).To(Equal(auth.CodeRateLimited))
		retryAfter, err := strconv.Atoi(locked.header.Get("Retry-After"))
		Expect(err).NotTo(HaveOccurred())
		Expect(retryAfter).To(BeNumerically(">", 0))
		Expect(retryAfter).To(BeNumerically("<=", 15*60))

		var count int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT attempt_count FROM login_attempts WHERE identifier = $1`, "1BM22CS004").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(5))
	})
})

var _ = Describe("Password reset", func() {
	var collegeID int64

	BeforeEach(func() {
		collegeID = resetDatabase()
	})

	It("does not reveal whether an identifier exists", func() {
		id := registerStudent(collegeID, "1bm22cs010", "festival-2026")

		known := post("/forgot-password", map[string]string{"identifier": "1BM22CS010"})
		unknown := post("/forgot-password", map[string]string{"identifier": "1BM22CS404"})
		Expect(known.status).To(Equal(http.StatusOK))
		Expect(known.body).To(Equal(unknown.body))
		Expect(env.notifier.last(id)).NotTo(BeEmpty())
	})

	It("resets with a mailed token exactly once", func() {
		id := registerStudent(collegeID, "1bm22cs011", "festival-2026")
		Expect(post("/forgot-password", map[string]string{"identifier": "1bm22cs011"}).status).To(Equal(http.StatusOK))
		raw := env.notifier.last(id)
		Expect(raw).NotTo(BeEmpty())

		reset := post("/reset-password", map[string]string{
			"identifier": "1BM22CS011", "token": raw, "newPassword": "new-festival-2026",
		})
		Expect(reset.status).To(Equal(http.StatusOK), string(reset.body))

		Expect(login("1BM22CS011", "festival-2026").status).To(Equal(http.StatusUnauthorized))
		Expect(login("1BM22CS011", "new-festival-2026").status).To(Equal(http.StatusOK))

		replay := post("/reset-password", map[string]string{
			"identifier": "1BM22CS011", "token": raw, "newPassword": "third-festival-2026",
		})
		Expect(replay.status).To(Equal(http.StatusBadRequest))
		Expect(replay.errorCode()).To(Equal(auth.CodeInvalidOrExpiredToken))

		var audits int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT count(*) FROM audit_logs WHERE action = 'PASSWORD_RESET'`).Scan(&audits)).To(Succeed())
		Expect(audits).To(Equal(1))
	})

	It("forces provisioned staff to replace the default password", func() {
		staff, err := env.register.Register(env.ctx, auth.RegisterRequest{
			Kind:      auth.KindStaff,
			Name:      "Team Manager",
			Email:     "tm@bmsce.ac.in",
			Phone:     "9988770000",
			Role:      auth.RoleTeamManager,
			CollegeID: &collegeID,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(staff.ForcePasswordReset).To(BeTrue())

		first := login("TM@bmsce.ac.in", defaultStaffPassword)
		Expect(first.status).To(Equal(http.StatusOK), string(first.body))
		body := first.json()
		Expect(body["status"]).To(Equal(string(auth.LoginForceReset)))
		Expect(body).NotTo(HaveKey("token"))
		resetToken, _ := body["resetToken"].(string)
		Expect(resetToken).NotTo(BeEmpty())

		reset := post("/reset-password", map[string]string{
			"identifier": "tm@bmsce.ac.in", "token": resetToken, "newPassword": "manager-2026!",
		})
		Expect(reset.status).To(Equal(http.StatusOK), string(reset.body))

		second := login("tm@bmsce.ac.in", "manager-2026!")
		Expect(second.status).To(Equal(http.StatusOK))
		Expect(second.json()).To(HaveKey("token"))

		var force bool
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT force_password_reset FROM accounts WHERE id = $1`, staff.ID).Scan(&force)).To(Succeed())
		Expect(force).To(BeFalse())
	})
})
