package recalc

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testServer struct {
	app    *fiber.App
	db     *bun.DB
	repo   RepositoryManager
	tokens TokenService
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	db, repo := setupTestDB(t)

	cfg := Config{
		SigningKey:    "test-signing-key",
		TokenLifetime: time.Hour,
	}

	tokens := NewTokenService([]byte(cfg.SigningKey), cfg.TokenLifetime, nil)
	auther := NewAuthenticator(repo, tokens, nil)
	claims := NewClaimService(repo, nil)
	controller := NewController(cfg, repo, auther, claims, tokens)

	app := fiber.New(fiber.Config{
		ErrorHandler: controller.ErrorHandler,
	})
	controller.RegisterRoutes(app)

	return &testServer{
		app:    app,
		db:     db,
		repo:   repo,
		tokens: tokens,
	}
}

func (s *testServer) tokenFor(t *testing.T, user *User) string {
	t.Helper()
	token, err := s.tokens.Generate(user.ID.String())
	require.NoError(t, err)
	return token
}

func (s *testServer) request(t *testing.T, method, target, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}

	res, err := s.app.Test(req, -1)
	require.NoError(t, err)

	return res
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()

	defer res.Body.Close()
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestPing(t *testing.T) {
	srv := setupTestServer(t)

	res := srv.request(t, fiber.MethodGet, "/ping", "", nil)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	assert.Equal(t, "pong", body["message"])
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("sets the session cookie on success", func(t *testing.T) {
		srv := setupTestServer(t)
		seedUser(t, srv.repo, "peppi", RoleUser, true)

		res := srv.request(t, fiber.MethodPost, "/auth/login", "", LoginForm{
			Username: "peppi",
			Password: "Sup3r$ecret",
		})
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		var cookie *http.Cookie
		for _, c := range res.Cookies() {
			if c.Name == SessionCookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie, "login must install the session cookie")
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)

		body := decodeBody(t, res)
		assert.Equal(t, "success", body["status"])
		assert.NotEmpty(t, body["token"])
	})

	t.Run("wrong credentials are a 401", func(t *testing.T) {
		srv := setupTestServer(t)
		seedUser(t, srv.repo, "peppi", RoleUser, true)

		res := srv.request(t, fiber.MethodPost, "/auth/login", "", LoginForm{
			Username: "peppi",
			Password: "Wr0ng$ecret",
		})
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, TextCodeInvalidCreds, body["code"])
	})

	t.Run("unverified account is a 403 with its own code", func(t *testing.T) {
		srv := setupTestServer(t)
		seedUser(t, srv.repo, "peppi", RoleUser, false)

		res := srv.request(t, fiber.MethodPost, "/auth/login", "", LoginForm{
			Username: "peppi",
			Password: "Sup3r$ecret",
		})
		assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, TextCodeNotVerified, body["code"])
	})
}

func TestSessionExtraction(t *testing.T) {
	srv := setupTestServer(t)
	user := seedUser(t, srv.repo, "peppi", RoleUser, true)
	token := srv.tokenFor(t, user)

	t.Run("cookie credential", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/users/me", token, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		userBody := body["user"].(map[string]any)
		assert.Equal(t, "peppi", userBody["username"])
	})

	t.Run("bearer header credential", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodGet, "/users/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

		res, err := srv.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)
	})

	t.Run("cookie wins over a bogus header", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodGet, "/users/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		req.Header.Set(fiber.HeaderAuthorization, "Bearer garbage")

		res, err := srv.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)
	})

	t.Run("missing credential is a 401", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/users/me", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, TextCodeUnauthenticated, body["code"])
	})

	t.Run("garbage token is a 401", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/users/me", "garbage", nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	})

	t.Run("token for a deleted user is a 401", func(t *testing.T) {
		ghost := seedUser(t, srv.repo, "ghost", RoleUser, true)
		ghostToken := srv.tokenFor(t, ghost)

		_, err := srv.db.NewDelete().
			Model((*User)(nil)).
			Where("id = ?", ghost.ID).
			Exec(context.Background())
		require.NoError(t, err)

		res := srv.request(t, fiber.MethodGet, "/users/me", ghostToken, nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	})
}

func TestRoleGuards(t *testing.T) {
	srv := setupTestServer(t)
	user := seedUser(t, srv.repo, "peppi", RoleUser, true)
	manager := seedUser(t, srv.repo, "lead", RoleManager, true)
	admin := seedUser(t, srv.repo, "boss", RoleAdmin, true)

	userToken := srv.tokenFor(t, user)
	managerToken := srv.tokenFor(t, manager)
	adminToken := srv.tokenFor(t, admin)

	t.Run("pending claims need manager rank", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/claims/pending", userToken, nil)
		assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

		res = srv.request(t, fiber.MethodGet, "/claims/pending", managerToken, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		res = srv.request(t, fiber.MethodGet, "/claims/pending", adminToken, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)
	})

	t.Run("category management needs admin rank", func(t *testing.T) {
		form := CategoryForm{Name: "travel", Percentage: 50, MaxReimbursement: 20}

		res := srv.request(t, fiber.MethodPost, "/categories/create", managerToken, form)
		assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

		res = srv.request(t, fiber.MethodPost, "/categories/create", adminToken, form)
		assert.Equal(t, fiber.StatusCreated, res.StatusCode)
	})

	t.Run("listing categories only needs a session", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/categories/list", userToken, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)
	})

	t.Run("prefix search needs manager rank", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/users/startswith?start=pep", userToken, nil)
		assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

		res = srv.request(t, fiber.MethodGet, "/users/startswith?start=pep", managerToken, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		users := body["users"].([]any)
		require.Len(t, users, 1)
	})

	t.Run("elevation needs admin rank", func(t *testing.T) {
		target := fmt.Sprintf("/users/make_manager/%s", user.ID)

		res := srv.request(t, fiber.MethodGet, target, managerToken, nil)
		assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

		res = srv.request(t, fiber.MethodGet, target, adminToken, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		res = srv.request(t, fiber.MethodGet, target, adminToken, nil)
		assert.Equal(t, fiber.StatusConflict, res.StatusCode)
	})
}

func TestClaimEndpoints(t *testing.T) {
	srv := setupTestServer(t)
	user := seedUser(t, srv.repo, "peppi", RoleUser, true)
	manager := seedUser(t, srv.repo, "lead", RoleManager, true)
	category := seedCategory(t, srv.repo, "travel", 50, 20)

	userToken := srv.tokenFor(t, user)
	managerToken := srv.tokenFor(t, manager)

	t.Run("estimate previews without persisting", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/claims/estimate_item", userToken, EstimateForm{
			CategoryID: category.ID.String(),
			Cost:       100,
		})
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.InDelta(t, 20.0, body["estimate"].(float64), 1e-9)
	})

	var claimID string

	t.Run("create and list my claims", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/claims/create", userToken, ClaimForm{
			Items: []ItemForm{{CategoryID: category.ID.String(), Cost: 100}},
		})
		require.Equal(t, fiber.StatusCreated, res.StatusCode)

		body := decodeBody(t, res)
		claim := body["claim"].(map[string]any)
		claimID = claim["id"].(string)
		assert.Equal(t, string(ClaimPending), claim["status"])
		assert.InDelta(t, 20.0, claim["totalReimbursement"].(float64), 1e-9)

		res = srv.request(t, fiber.MethodGet, "/claims/my", userToken, nil)
		require.Equal(t, fiber.StatusOK, res.StatusCode)

		listBody := decodeBody(t, res)
		claims := listBody["claims"].([]any)
		require.Len(t, claims, 1)
	})

	t.Run("process accepts once and conflicts after", func(t *testing.T) {
		accept := true
		target := fmt.Sprintf("/claims/process/%s", claimID)

		res := srv.request(t, fiber.MethodPost, target, managerToken, ProcessForm{Accept: &accept})
		require.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		claim := body["claim"].(map[string]any)
		assert.Equal(t, string(ClaimAccepted), claim["status"])

		res = srv.request(t, fiber.MethodPost, target, managerToken, ProcessForm{Accept: &accept})
		assert.Equal(t, fiber.StatusConflict, res.StatusCode)
	})

	t.Run("process without a decision is a 400", func(t *testing.T) {
		target := fmt.Sprintf("/claims/process/%s", claimID)

		res := srv.request(t, fiber.MethodPost, target, managerToken, map[string]any{})
		assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	})
}

func TestRegisterAndVerifyEndpoints(t *testing.T) {
	srv := setupTestServer(t)

	res := srv.request(t, fiber.MethodPost, "/auth/register", "", SignupForm{
		Mail:     "peppi@example.com",
		Username: "peppi",
		Password: "Sup3r$ecret",
	})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	t.Run("login before verification fails", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/login", "", LoginForm{
			Username: "peppi",
			Password: "Sup3r$ecret",
		})
		assert.Equal(t, fiber.StatusForbidden, res.StatusCode)
	})

	t.Run("verification link flips the account", func(t *testing.T) {
		pending, err := srv.repo.Notifications().ListPending(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		res := srv.request(t, fiber.MethodGet, "/auth/verifyemail/"+pending[0].Code, "", nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		login := srv.request(t, fiber.MethodPost, "/auth/login", "", LoginForm{
			Username: "peppi",
			Password: "Sup3r$ecret",
		})
		assert.Equal(t, fiber.StatusOK, login.StatusCode)
	})

	t.Run("bogus verification code is a 404", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/auth/verifyemail/bogus", "", nil)
		assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
	})

	t.Run("user count is public", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/users/count", "", nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.EqualValues(t, 1, body["count"])
	})
}

func TestLogoutEndpoint(t *testing.T) {
	srv := setupTestServer(t)
	user := seedUser(t, srv.repo, "peppi", RoleUser, true)
	token := srv.tokenFor(t, user)

	res := srv.request(t, fiber.MethodGet, "/auth/logout", token, nil)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()))
}
