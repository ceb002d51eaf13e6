package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bounty-arbitration-service/models"
	"bounty-arbitration-service/services"
	"bounty-arbitration-service/store"

	"github.com/gofiber/fiber/v2"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestApp(t *testing.T) (*fiber.App, *services.ArbitrationService) {
	t.Helper()
	svc := services.NewArbitrationService(store.NewMemoryStore(), services.Options{})
	ctx := context.Background()
	for id, model := range map[string]models.ClaimingModel{
		"b1":   models.ClaimingModelSingleClaim,
		"comp": models.ClaimingModelCompetition,
	} {
		if _, err := svc.CreateBounty(ctx, services.CreateBountyRequest{ID: id, ClaimingModel: model}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	app := fiber.New()
	SetupBountyRoutes(app, svc)
	SetupCompetitionRoutes(app, svc)
	return app, svc
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, env
}

func TestClaimEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/bounties/b1/claim", `{"contributorId":"alice"}`, nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("claim: status %d, %+v", status, env)
	}
	var b models.Bounty
	if err := json.Unmarshal(env.Data, &b); err != nil {
		t.Fatalf("decode bounty: %v", err)
	}
	if b.Status != models.BountyStatusClaimed || b.Holder() != "alice" || b.ClaimExpiresAt == nil {
		t.Fatalf("unexpected bounty: %+v", b)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/b1/claim", `{"contributorId":"bob"}`, nil)
	if status != http.StatusConflict || env.Code != string(services.KindConflict) {
		t.Fatalf("second claim: status %d, %+v", status, env)
	}
}

func TestClaimUsesForwardedContributor(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/bounties/b1/claim", "", map[string]string{"X-Contributor-ID": "carol"})
	if status != http.StatusOK {
		t.Fatalf("status %d, %+v", status, env)
	}
	var b models.Bounty
	_ = json.Unmarshal(env.Data, &b)
	if b.Holder() != "carol" {
		t.Fatalf("holder = %q, want carol", b.Holder())
	}
}

func TestClaimValidation(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/bounties/b1/claim", "", nil)
	if status != http.StatusBadRequest || env.Error != "Missing contributorId" {
		t.Fatalf("missing contributor: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/b1/claim", `{"contributorId":"alice","leaseDurationHours":-1}`, nil)
	if status != http.StatusBadRequest || env.Code != string(services.KindValidation) {
		t.Fatalf("negative lease: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/nope/claim", `{"contributorId":"alice"}`, nil)
	if status != http.StatusNotFound || env.Code != string(services.KindNotFound) {
		t.Fatalf("unknown bounty: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/comp/claim", `{"contributorId":"alice"}`, nil)
	if status != http.StatusBadRequest || env.Code != string(services.KindModelMismatch) {
		t.Fatalf("claim on competition: status %d, %+v", status, env)
	}
}

func TestReleaseAndComplete(t *testing.T) {
	app, _ := newTestApp(t)

	do(t, app, http.MethodPost, "/bounties/b1/claim", `{"contributorId":"alice"}`, nil)

	status, env := do(t, app, http.MethodPost, "/bounties/b1/complete", `{"contributorId":"bob"}`, nil)
	if status != http.StatusConflict {
		t.Fatalf("complete by non-holder: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/b1/release", `{"contributorId":"alice"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("release: status %d, %+v", status, env)
	}

	do(t, app, http.MethodPost, "/bounties/b1/claim", `{"contributorId":"bob"}`, nil)
	status, env = do(t, app, http.MethodPost, "/bounties/b1/complete", `{"contributorId":"bob"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("complete: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodGet, "/bounties/b1", "", nil)
	var b models.Bounty
	_ = json.Unmarshal(env.Data, &b)
	if status != http.StatusOK || b.Status != models.BountyStatusCompleted {
		t.Fatalf("get: status %d, bounty %+v", status, b)
	}
}

func TestCompetitionEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	for _, c := range []string{"alice", "bob"} {
		status, env := do(t, app, http.MethodPost, "/bounties/comp/competition/join", `{"contributorId":"`+c+`"}`, nil)
		if status != http.StatusOK {
			t.Fatalf("join %s: status %d, %+v", c, status, env)
		}
	}

	status, env := do(t, app, http.MethodPost, "/bounties/comp/competition/join", `{"contributorId":"alice"}`, nil)
	if status != http.StatusConflict {
		t.Fatalf("duplicate join: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/b1/competition/join", `{"contributorId":"alice"}`, nil)
	if status != http.StatusBadRequest || env.Code != string(services.KindModelMismatch) {
		t.Fatalf("join on single-claim: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/comp/competition/withdraw", `{"contributorId":"bob"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("withdraw: status %d, %+v", status, env)
	}

	status, env = do(t, app, http.MethodGet, "/bounties/comp/competition/participants", "", nil)
	var participants []models.CompetitionParticipation
	if err := json.Unmarshal(env.Data, &participants); err != nil {
		t.Fatalf("decode participants: %v", err)
	}
	if status != http.StatusOK || len(participants) != 2 {
		t.Fatalf("participants: status %d, %+v", status, participants)
	}
}

func TestEnterEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/bounties/comp/enter", `{"contributorId":"alice"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("enter competition: status %d, %+v", status, env)
	}
	var result services.EntryResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Participation == nil || result.Bounty != nil {
		t.Fatalf("unexpected entry result: %+v", result)
	}

	status, env = do(t, app, http.MethodPost, "/bounties/b1/enter", `{"contributorId":"alice"}`, nil)
	result = services.EntryResult{}
	_ = json.Unmarshal(env.Data, &result)
	if status != http.StatusOK || result.Bounty == nil {
		t.Fatalf("enter single-claim: status %d, %+v", status, result)
	}
}

func TestLeaseHoursMustBePositive(t *testing.T) {
	app, svc := newTestApp(t)

	for _, route := range []string{"claim", "enter"} {
		for _, hours := range []string{"0", "-1", "1e-13"} {
			body := `{"contributorId":"alice","leaseDurationHours":` + hours + `}`
			status, env := do(t, app, http.MethodPost, "/bounties/b1/"+route, body, nil)
			if status != http.StatusBadRequest || env.Code != string(services.KindValidation) {
				t.Fatalf("%s with %s hours: status %d, %+v", route, hours, status, env)
			}
		}
	}

	b, err := svc.GetBounty(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Status != models.BountyStatusOpen {
		t.Fatalf("rejected leases must not claim: status = %s", b.Status)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"id":"b9","claimingModel":"single-claim"}`
	status, _ := do(t, app, http.MethodPost, "/bounties", body, nil)
	if status != http.StatusForbidden {
		t.Fatalf("create without role: status %d", status)
	}

	status, env := do(t, app, http.MethodPost, "/bounties", body, map[string]string{"X-User-Roles": "user, admin"})
	if status != http.StatusCreated {
		t.Fatalf("create as admin: status %d, %+v", status, env)
	}

	status, _ = do(t, app, http.MethodPost, "/bounties/b9/cancel", "", map[string]string{"X-User-Roles": "admin"})
	if status != http.StatusOK {
		t.Fatalf("cancel as admin: status %d", status)
	}

	status, env = do(t, app, http.MethodGet, "/bounties?status=cancelled", "", nil)
	var bounties []models.Bounty
	_ = json.Unmarshal(env.Data, &bounties)
	if status != http.StatusOK || len(bounties) != 1 || bounties[0].ID != "b9" {
		t.Fatalf("list cancelled: status %d, %+v", status, bounties)
	}
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
}
