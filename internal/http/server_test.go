package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"hearth/internal/auth"
	"hearth/internal/cache"
	"hearth/internal/hub"
	"hearth/internal/metrics"
	"hearth/internal/services"
	"hearth/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	tokens := auth.NewJWTManager("test-secret-at-least-32-bytes-long", time.Hour)
	m := metrics.New()
	balances := cache.NewLRUCache[services.BalanceReport](16, time.Minute)
	expenses := services.NewExpenseService(repo, nil, balances, m)

	srv := NewServer(":0", Deps{
		Auth:         services.NewAuthService(repo, tokens),
		Groups:       services.NewGroupService(repo, expenses),
		Tasks:        services.NewTaskService(repo, nil, m),
		Expenses:     expenses,
		Rewards:      services.NewRewardService(repo, nil, m),
		Achievements: services.NewAchievementService(repo, nil, m),
		Tokens:       tokens,
		Metrics:      m,
		Hub:          hub.New(),
	})

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (c *client) doList(method, path string) (*http.Response, []map[string]any) {
	c.t.Helper()

	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded []map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func register(t *testing.T, base, email string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	resp, body := c.do("POST", "/api/v1/auth/register", map[string]string{
		"email":     email,
		"full_name": "User " + email,
		"password":  "a-strong-password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d (%v)", email, resp.StatusCode, body)
	}
	c.token = body["token"].(string)
	return c
}

func TestAuthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	register(t, ts.URL, "anna@example.com")

	t.Run("duplicate email conflicts", func(t *testing.T) {
		anon := &client{t: t, base: ts.URL}
		resp, _ := anon.do("POST", "/api/v1/auth/register", map[string]string{
			"email": "anna@example.com", "full_name": "Anna", "password": "a-strong-password",
		})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("bad login is 401", func(t *testing.T) {
		anon := &client{t: t, base: ts.URL}
		resp, _ := anon.do("POST", "/api/v1/auth/login", map[string]string{
			"email": "anna@example.com", "password": "wrong-password",
		})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("protected route without token is 401", func(t *testing.T) {
		anon := &client{t: t, base: ts.URL}
		resp, _ := anon.do("GET", "/api/v1/groups", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestExpenseFlow(t *testing.T) {
	ts := newTestServer(t)

	payer := register(t, ts.URL, "payer@example.com")
	partner := register(t, ts.URL, "partner@example.com")

	resp, group := payer.do("POST", "/api/v1/groups", map[string]string{"name": "The Flat"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: %d", resp.StatusCode)
	}
	groupID := group["id"].(string)
	inviteCode := group["invite_code"].(string)

	if resp, _ := partner.do("POST", "/api/v1/groups/join", map[string]string{"invite_code": inviteCode}); resp.StatusCode != http.StatusOK {
		t.Fatalf("join: %d", resp.StatusCode)
	}

	if resp, _ := payer.do("POST", "/api/v1/expenses", map[string]any{
		"description": "Rent", "amount": 100.0, "category": "Housing",
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("record expense: %d", resp.StatusCode)
	}

	t.Run("invalid amount is 400", func(t *testing.T) {
		resp, _ := payer.do("POST", "/api/v1/expenses", map[string]any{
			"description": "Bad", "amount": -5.0, "category": "Misc",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("balances split between members", func(t *testing.T) {
		resp, report := partner.do("GET", "/api/v1/groups/"+groupID+"/balances", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("balances: %d", resp.StatusCode)
		}
		if total := report["total"].(float64); total != 100 {
			t.Errorf("total = %v, want 100", total)
		}
		transfers := report["transfers"].([]any)
		if len(transfers) != 1 {
			t.Fatalf("transfers = %d, want 1", len(transfers))
		}
		tr := transfers[0].(map[string]any)
		if tr["amount"].(float64) != 50 {
			t.Errorf("transfer amount = %v, want 50", tr["amount"])
		}
	})

	t.Run("outsider gets 403", func(t *testing.T) {
		outsider := register(t, ts.URL, "outsider@example.com")
		resp, _ := outsider.do("GET", "/api/v1/groups/"+groupID+"/balances", nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("settle clears the slate", func(t *testing.T) {
		resp, result := payer.do("POST", "/api/v1/groups/"+groupID+"/settle", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("settle: %d", resp.StatusCode)
		}
		if cleared := result["cleared_expenses"].(float64); cleared != 1 {
			t.Errorf("cleared = %v, want 1", cleared)
		}

		resp, list := payer.doList("GET", "/api/v1/groups/"+groupID+"/expenses")
		if resp.StatusCode != http.StatusOK || len(list) != 0 {
			t.Errorf("expenses after settle = %d (status %d), want empty", len(list), resp.StatusCode)
		}
	})
}

func TestTaskAndRewardFlow(t *testing.T) {
	ts := newTestServer(t)

	member := register(t, ts.URL, "member@example.com")
	if resp, _ := member.do("POST", "/api/v1/groups", map[string]string{"name": "Home"}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: %d", resp.StatusCode)
	}

	resp, task := member.do("POST", "/api/v1/tasks", map[string]any{
		"title": "Dishes", "points": 30,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d", resp.StatusCode)
	}
	taskID := task["id"].(string)

	if resp, _ := member.do("PATCH", "/api/v1/tasks/"+taskID+"/status", map[string]string{"status": "completed"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("complete task: %d", resp.StatusCode)
	}

	resp, reward := member.do("POST", "/api/v1/rewards", map[string]any{
		"title": "Movie night", "cost": 30,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create reward: %d", resp.StatusCode)
	}
	rewardID := reward["id"].(string)

	resp, redemption := member.do("POST", "/api/v1/rewards/"+rewardID+"/claim", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("claim: %d (%v)", resp.StatusCode, redemption)
	}
	redemptionID := redemption["id"].(string)

	t.Run("second claim is 400, balance spent", func(t *testing.T) {
		resp, _ := member.do("POST", "/api/v1/rewards/"+rewardID+"/claim", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("reject refunds, flip is 409", func(t *testing.T) {
		resp, resolved := member.do("PATCH", "/api/v1/redemptions/"+redemptionID, map[string]bool{"approve": false})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reject: %d", resp.StatusCode)
		}
		if resolved["status"] != "rejected" {
			t.Errorf("status = %v, want rejected", resolved["status"])
		}

		resp, _ = member.do("PATCH", "/api/v1/redemptions/"+redemptionID, map[string]bool{"approve": true})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("flip status = %d, want 409", resp.StatusCode)
		}

		// The refund makes a second claim possible.
		resp, _ = member.do("POST", "/api/v1/rewards/"+rewardID+"/claim", nil)
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("reclaim after refund = %d, want 201", resp.StatusCode)
		}
	})

	t.Run("unknown task is 404", func(t *testing.T) {
		resp, _ := member.do("PATCH", "/api/v1/tasks/nope/status", map[string]string{"status": "completed"})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestAchievementEndpoints(t *testing.T) {
	ts := newTestServer(t)

	member := register(t, ts.URL, "badges@example.com")

	t.Run("catalog lists the seeded achievements", func(t *testing.T) {
		resp, achievements := member.doList("GET", "/api/v1/achievements")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list: %d", resp.StatusCode)
		}
		if len(achievements) != 6 {
			t.Fatalf("catalog = %d entries, want 6", len(achievements))
		}
		if achievements[0]["earned"] != false {
			t.Errorf("fresh account has earned %v", achievements[0]["name"])
		}
	})

	t.Run("check without progress earns nothing", func(t *testing.T) {
		resp, result := member.do("POST", "/api/v1/achievements/check", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("check: %d", resp.StatusCode)
		}
		if result["count"] != float64(0) {
			t.Errorf("count = %v, want 0", result["count"])
		}
	})

	t.Run("requires auth", func(t *testing.T) {
		anon := &client{t: t, base: ts.URL}
		resp, _ := anon.do("GET", "/api/v1/achievements", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(fmt.Sprintf("%s/healthz", ts.URL))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
