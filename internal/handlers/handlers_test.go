package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/auth"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/referral"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/tokenstorage"
	"github.com/sol1corejz/invertgold/internal/withdrawal"
	"github.com/sol1corejz/invertgold/internal/workers"
)

var loc = withdrawal.Location(withdrawal.ReferenceZone)

func setup(t *testing.T) *fiber.App {
	t.Helper()

	config.JWTSecret = "test-secret"
	config.LoginRate = 0
	config.AdminUsername = ""
	storage.Store = storage.NewMemory()
	workers.Schedules = workers.NewScheduleWatcher(loc)
	t.Cleanup(func() { now = time.Now })

	return NewApp()
}

func at(t *testing.T, value string) {
	t.Helper()

	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	now = func() time.Time { return ts }
}

func seedUser(t *testing.T, username, role string, sponsor *int64) models.User {
	t.Helper()

	u, err := storage.Store.CreateUser(context.Background(), models.User{
		Username:  username,
		Email:     username + "@example.com",
		Name:      username,
		Role:      role,
		SponsorID: sponsor,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func tokenFor(t *testing.T, u models.User) string {
	t.Helper()

	token, expires, err := auth.GenerateToken(u)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	tokenstorage.AddToken(token, expires)
	return token
}

func seedSchedule(t *testing.T, date, from, to string, fee int64) models.WithdrawalSchedule {
	t.Helper()

	s, err := storage.Store.CreateSchedule(context.Background(), models.WithdrawalSchedule{
		StartDate: date, EndDate: date, StartTime: from, EndTime: to,
		FeePercent: decimal.NewFromInt(fee), Message: "window " + date,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	if err := workers.Schedules.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh schedules: %v", err)
	}
	return s
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()

	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	app := setup(t)
	config.AdminUsername = "boss"

	resp := doRequest(t, app, fiber.MethodPost, "/api/user/register", "", map[string]string{
		"username": "boss", "email": "boss@example.com", "password": "secret1",
	})
	expectStatus(t, resp, fiber.StatusOK)
	if resp.Header.Get(fiber.HeaderAuthorization) == "" {
		t.Fatalf("expected authorization header on register")
	}

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/register", "", map[string]string{
		"username": "ana", "email": "ana@example.com", "password": "secret1", "sponsor": "boss",
	})
	expectStatus(t, resp, fiber.StatusOK)

	boss, err := storage.Store.GetUserByLogin(context.Background(), "boss")
	if err != nil || boss.Role != models.RoleAdmin {
		t.Fatalf("expected boss to be admin, got %+v (%v)", boss, err)
	}
	ana, err := storage.Store.GetUserByLogin(context.Background(), "ana")
	if err != nil || ana.SponsorID == nil || *ana.SponsorID != boss.ID {
		t.Fatalf("expected ana sponsored by boss, got %+v (%v)", ana, err)
	}

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/register", "", map[string]string{
		"username": "ana", "email": "other@example.com", "password": "secret1",
	})
	expectStatus(t, resp, fiber.StatusConflict)

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/register", "", map[string]string{
		"username": "leo", "email": "leo@example.com", "password": "secret1", "sponsor": "nobody",
	})
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/register", "", map[string]string{
		"username": "x", "email": "not-an-email", "password": "1",
	})
	expectStatus(t, resp, fiber.StatusBadRequest)

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/login", "", map[string]string{
		"login": "ANA@example.com", "password": "secret1",
	})
	expectStatus(t, resp, fiber.StatusOK)

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/login", "", map[string]string{
		"login": "ana", "password": "wrong-password",
	})
	expectStatus(t, resp, fiber.StatusUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	app := setup(t)
	token := tokenFor(t, seedUser(t, "ana", "", nil))

	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/user/balance", token, nil), fiber.StatusOK)
	expectStatus(t, doRequest(t, app, fiber.MethodPost, "/api/user/logout", token, nil), fiber.StatusNoContent)
	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/user/balance", token, nil), fiber.StatusUnauthorized)
	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/user/balance", "", nil), fiber.StatusUnauthorized)
}

func TestReferralTree(t *testing.T) {
	app := setup(t)

	ana := seedUser(t, "ana", "", nil)
	bob := seedUser(t, "bob", "", &ana.ID)
	seedUser(t, "cara", "", &bob.ID)
	seedUser(t, "dan", "", &ana.ID)
	seedUser(t, "outsider", "", nil)

	token := tokenFor(t, ana)

	resp := doRequest(t, app, fiber.MethodGet, "/api/user/referrals/tree", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var tree TreeResponse
	decode(t, resp, &tree)
	if tree.Root == nil || tree.Root.ID != ana.ID {
		t.Fatalf("expected ana as root, got %+v", tree.Root)
	}
	if tree.DirectCount != 2 || tree.TotalDownline != 3 {
		t.Fatalf("expected 2 direct and 3 total, got %d and %d", tree.DirectCount, tree.TotalDownline)
	}

	resp = doRequest(t, app, fiber.MethodGet, "/api/user/referrals/members", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var rows []referral.Row
	decode(t, resp, &rows)
	want := []struct {
		username string
		level    int
	}{{"bob", 1}, {"cara", 2}, {"dan", 1}}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, w := range want {
		if rows[i].Username != w.username || rows[i].Level != w.level {
			t.Fatalf("row %d: expected %s at level %d, got %s at level %d", i, w.username, w.level, rows[i].Username, rows[i].Level)
		}
	}
	if rows[0].TotalDownline != 1 {
		t.Fatalf("expected bob to have 1 below, got %d", rows[0].TotalDownline)
	}
}

func TestReferralMembersEmpty(t *testing.T) {
	app := setup(t)
	token := tokenFor(t, seedUser(t, "ana", "", nil))

	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/user/referrals/members", token, nil), fiber.StatusNoContent)

	resp := doRequest(t, app, fiber.MethodGet, "/api/user/referrals/tree", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var tree TreeResponse
	decode(t, resp, &tree)
	if tree.DirectCount != 0 || tree.TotalDownline != 0 {
		t.Fatalf("expected empty downline, got %+v", tree.Aggregates)
	}
}

func TestInspectReferrals(t *testing.T) {
	app := setup(t)
	admin := tokenFor(t, seedUser(t, "root", models.RoleAdmin, nil))

	payload := `{"data": {"arbol": {"usuario_id": 1, "usuario": "ana", "hijos": [
		{"usuario_id": 2, "usuario": "bob", "hijos": [{"usuario_id": 3, "usuario": "cara"}]},
		{"usuario_id": 4, "usuario": "dan", "sponsor_id": 4}
	]}}}`

	resp := doRequest(t, app, fiber.MethodPost, "/api/admin/referrals/inspect?root=ana", admin, payload)
	expectStatus(t, resp, fiber.StatusOK)

	var res InspectResponse
	decode(t, resp, &res)
	if res.Kind != "wrapped_tree" {
		t.Fatalf("expected wrapped_tree, got %s", res.Kind)
	}
	if res.Root == nil || res.Root.ID != 1 {
		t.Fatalf("expected root 1, got %+v", res.Root)
	}
	if res.DirectCount != 1 || res.TotalDownline != 2 {
		t.Fatalf("expected 1 direct and 2 total, got %d and %d", res.DirectCount, res.TotalDownline)
	}
	if len(res.Unreachable) != 1 || res.Unreachable[0] != 4 {
		t.Fatalf("expected 4 to be unreachable, got %v", res.Unreachable)
	}
	if len(res.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(res.Members))
	}

	resp = doRequest(t, app, fiber.MethodPost, "/api/admin/referrals/inspect", admin, `{"data": []}`)
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)
}

func TestEligibility(t *testing.T) {
	app := setup(t)
	token := tokenFor(t, seedUser(t, "ana", "", nil))

	seedSchedule(t, "2030-01-10", "09:00", "17:00", 5)
	seedSchedule(t, "2030-02-10", "09:00", "17:00", 7)

	at(t, "2030-01-10 12:00")
	resp := doRequest(t, app, fiber.MethodGet, "/api/user/withdrawals/eligibility", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var res withdrawal.Result
	decode(t, resp, &res)
	if !res.IsEligibleNow || !res.ActiveFeePercent.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected open window with fee 5, got %+v", res)
	}

	at(t, "2030-01-01 12:00")
	resp = doRequest(t, app, fiber.MethodGet, "/api/user/withdrawals/eligibility", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	res = withdrawal.Result{}
	decode(t, resp, &res)
	if res.IsEligibleNow {
		t.Fatalf("expected closed window, got %+v", res)
	}
	if len(res.UpcomingWindows) != 2 {
		t.Fatalf("expected 2 upcoming windows, got %v", res.UpcomingWindows)
	}
}

func TestWithdrawFlow(t *testing.T) {
	app := setup(t)
	ana := seedUser(t, "ana", "", nil)
	token := tokenFor(t, ana)

	if err := storage.Store.CreditBalance(context.Background(), ana.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	schedule := seedSchedule(t, "2030-01-10", "09:00", "17:00", 5)

	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/user/withdrawals", token, nil), fiber.StatusNoContent)

	at(t, "2030-01-11 12:00")
	resp := doRequest(t, app, fiber.MethodPost, "/api/user/balance/withdraw", token, map[string]any{"amount": 50})
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)

	at(t, "2030-01-10 12:00")
	resp = doRequest(t, app, fiber.MethodPost, "/api/user/withdrawals/quote", token, map[string]any{"amount": 100})
	expectStatus(t, resp, fiber.StatusOK)

	var quote QuoteResponse
	decode(t, resp, &quote)
	if !quote.Valid || !quote.Fee.Equal(decimal.NewFromInt(5)) || !quote.Net.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("expected valid quote 5/95, got %+v", quote)
	}

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/balance/withdraw", token, map[string]any{"amount": 100})
	expectStatus(t, resp, fiber.StatusOK)

	var created WithdrawalsResponse
	decode(t, resp, &created)
	if !created.Net.Equal(decimal.NewFromInt(95)) || created.ScheduleID == nil || *created.ScheduleID != schedule.ID {
		t.Fatalf("unexpected withdrawal %+v", created)
	}

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/balance/withdraw", token, map[string]any{"amount": 10})
	expectStatus(t, resp, fiber.StatusPaymentRequired)

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/balance/withdraw", token, map[string]any{"amount": 0})
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)

	resp = doRequest(t, app, fiber.MethodGet, "/api/user/balance", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var balance BalanceResponse
	decode(t, resp, &balance)
	if !balance.Current.IsZero() || !balance.Withdrawn.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 0/100, got %s/%s", balance.Current, balance.Withdrawn)
	}

	resp = doRequest(t, app, fiber.MethodGet, "/api/user/withdrawals", token, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var history []WithdrawalsResponse
	decode(t, resp, &history)
	if len(history) != 1 || history[0].Reference != created.Reference {
		t.Fatalf("expected one withdrawal %s, got %+v", created.Reference, history)
	}
}

func TestAdminRequiresRole(t *testing.T) {
	app := setup(t)
	member := tokenFor(t, seedUser(t, "ana", "", nil))

	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/admin/schedules", member, nil), fiber.StatusForbidden)
	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/admin/schedules", "", nil), fiber.StatusUnauthorized)
}

func TestAdminSchedules(t *testing.T) {
	app := setup(t)
	admin := tokenFor(t, seedUser(t, "root", models.RoleAdmin, nil))

	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/admin/schedules", admin, nil), fiber.StatusNoContent)

	resp := doRequest(t, app, fiber.MethodPost, "/api/admin/schedules", admin, map[string]any{
		"start_date": "2030-01-10", "end_date": "2030-01-12",
		"start_time": "09:00", "end_time": "17:00",
		"fee_percent": 4, "message": "January",
	})
	expectStatus(t, resp, fiber.StatusCreated)

	var created ScheduleResponse
	decode(t, resp, &created)
	if !created.Valid || created.Description != "Desde: 2030-01-10 hasta 2030-01-12, en horarios desde 09:00 hasta la(s) 17:00" {
		t.Fatalf("unexpected schedule %+v", created)
	}

	at(t, "2030-01-11 10:00")
	if res := workers.Schedules.Evaluate(now()); !res.IsEligibleNow {
		t.Fatalf("expected new schedule to be picked up, got %+v", res)
	}

	resp = doRequest(t, app, fiber.MethodPost, "/api/admin/schedules", admin, map[string]any{
		"start_date": "2030-01-12", "end_date": "2030-01-10",
		"start_time": "09:00", "end_time": "17:00",
	})
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)

	resp = doRequest(t, app, fiber.MethodPost, "/api/admin/schedules", admin, map[string]any{
		"start_date": "2030-13-01", "end_date": "2030-01-10",
		"start_time": "09:00", "end_time": "17:00",
	})
	expectStatus(t, resp, fiber.StatusBadRequest)

	resp = doRequest(t, app, fiber.MethodGet, "/api/admin/schedules", admin, nil)
	expectStatus(t, resp, fiber.StatusOK)

	var list []ScheduleResponse
	decode(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(list))
	}

	path := fmt.Sprintf("/api/admin/schedules/%d", created.ID)
	expectStatus(t, doRequest(t, app, fiber.MethodDelete, path, admin, nil), fiber.StatusOK)
	expectStatus(t, doRequest(t, app, fiber.MethodDelete, path, admin, nil), fiber.StatusNotFound)

	if res := workers.Schedules.Evaluate(now()); res.IsEligibleNow {
		t.Fatalf("expected deleted schedule to be dropped, got %+v", res)
	}

	seedSchedule(t, "2030-03-01", "09:00", "17:00", 1)
	first := seedSchedule(t, "2030-03-02", "09:00", "17:00", 1)
	resp = doRequest(t, app, fiber.MethodDelete, "/api/admin/schedules", admin, map[string]any{"ids": []int64{first.ID, 9999}})
	expectStatus(t, resp, fiber.StatusOK)

	var deleted struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, resp, &deleted)
	if deleted.Deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted.Deleted)
	}
}

func TestAdminUsers(t *testing.T) {
	app := setup(t)
	admin := tokenFor(t, seedUser(t, "root", models.RoleAdmin, nil))

	ana := seedUser(t, "ana", "", nil)
	bob := seedUser(t, "bob", "", &ana.ID)
	cara := seedUser(t, "cara", "", &bob.ID)

	path := fmt.Sprintf("/api/admin/users/%d/sponsor", ana.ID)
	resp := doRequest(t, app, fiber.MethodPut, path, admin, map[string]any{"sponsor_id": cara.ID})
	expectStatus(t, resp, fiber.StatusConflict)

	path = fmt.Sprintf("/api/admin/users/%d/sponsor", cara.ID)
	resp = doRequest(t, app, fiber.MethodPut, path, admin, map[string]any{"sponsor_id": 9999})
	expectStatus(t, resp, fiber.StatusNotFound)

	resp = doRequest(t, app, fiber.MethodPut, path, admin, map[string]any{"sponsor_id": ana.ID})
	expectStatus(t, resp, fiber.StatusNoContent)

	moved, err := storage.Store.GetUserByID(context.Background(), cara.ID)
	if err != nil || moved.SponsorID == nil || *moved.SponsorID != ana.ID {
		t.Fatalf("expected cara under ana, got %+v (%v)", moved, err)
	}

	path = fmt.Sprintf("/api/admin/users/%d/credit", ana.ID)
	resp = doRequest(t, app, fiber.MethodPost, path, admin, map[string]any{"amount": -5})
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)

	resp = doRequest(t, app, fiber.MethodPost, path, admin, map[string]any{"amount": "12.50"})
	expectStatus(t, resp, fiber.StatusOK)

	var balance BalanceResponse
	decode(t, resp, &balance)
	if !balance.Current.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected 12.5, got %s", balance.Current)
	}

	expectStatus(t, doRequest(t, app, fiber.MethodPost, "/api/admin/users/9999/credit", admin, map[string]any{"amount": 1}), fiber.StatusNotFound)
}

func TestWithdrawRejectsFractionOfCent(t *testing.T) {
	app := setup(t)
	ana := seedUser(t, "ana", "", nil)
	token := tokenFor(t, ana)

	if err := storage.Store.CreditBalance(context.Background(), ana.ID, decimal.RequireFromString("0.01")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	seedSchedule(t, "2030-01-10", "09:00", "17:00", 0)
	at(t, "2030-01-10 12:00")

	resp := doRequest(t, app, fiber.MethodPost, "/api/user/balance/withdraw", token, map[string]any{"amount": 0.004})
	expectStatus(t, resp, fiber.StatusUnprocessableEntity)

	resp = doRequest(t, app, fiber.MethodPost, "/api/user/withdrawals/quote", token, map[string]any{"amount": 0.004})
	expectStatus(t, resp, fiber.StatusOK)

	var quote QuoteResponse
	decode(t, resp, &quote)
	if quote.Valid || quote.Error != withdrawal.ErrAmountPrecision.Error() {
		t.Fatalf("expected precision error, got %+v", quote)
	}

	balance, err := storage.Store.GetUserBalance(context.Background(), ana.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.CurrentBalance.Equal(decimal.RequireFromString("0.01")) || !balance.WithdrawnTotal.IsZero() {
		t.Fatalf("expected untouched balance, got %s/%s", balance.CurrentBalance, balance.WithdrawnTotal)
	}
	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/user/withdrawals", token, nil), fiber.StatusNoContent)
}

func TestCreditRejectsFractionOfCent(t *testing.T) {
	app := setup(t)
	admin := tokenFor(t, seedUser(t, "root", models.RoleAdmin, nil))
	ana := seedUser(t, "ana", "", nil)

	path := fmt.Sprintf("/api/admin/users/%d/credit", ana.ID)
	expectStatus(t, doRequest(t, app, fiber.MethodPost, path, admin, map[string]any{"amount": "1.005"}), fiber.StatusUnprocessableEntity)
}

func TestCreateScheduleRejectsFeeOutOfRange(t *testing.T) {
	app := setup(t)
	admin := tokenFor(t, seedUser(t, "root", models.RoleAdmin, nil))

	for _, fee := range []string{"1000", "2.5001"} {
		resp := doRequest(t, app, fiber.MethodPost, "/api/admin/schedules", admin, map[string]any{
			"start_date": "2030-01-10", "end_date": "2030-01-12",
			"start_time": "09:00", "end_time": "17:00",
			"fee_percent": fee,
		})
		expectStatus(t, resp, fiber.StatusUnprocessableEntity)
	}

	expectStatus(t, doRequest(t, app, fiber.MethodGet, "/api/admin/schedules", admin, nil), fiber.StatusNoContent)
}
