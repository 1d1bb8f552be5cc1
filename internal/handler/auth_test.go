package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devro-ai/devro/internal/auth"
	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/ledger"
	"github.com/devro-ai/devro/internal/service"
	"github.com/devro-ai/devro/internal/session"
	"github.com/devro-ai/devro/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	store    *store.MemoryStore
	accounts service.AccountService
	ledger   ledger.Service
	handler  *AuthHandler
	profile  *ProfileHandler
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	logger := testLogger()
	st := store.NewMemoryStore()
	policy := domain.Policy{}

	accounts := service.NewAccountService(st, policy, time.UTC, logger)
	ledgerSvc := ledger.New(ledger.Config{
		Accounts: st,
		Policy:   policy,
		Location: time.UTC,
		Logger:   logger,
	})

	return &authFixture{
		store:    st,
		accounts: accounts,
		ledger:   ledgerSvc,
		handler:  NewAuthHandler(accounts, policy, logger, false),
		profile:  NewProfileHandler(accounts, ledgerSvc, policy, logger),
	}
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestSignup_CreatesSessionAndSeedsAllowance(t *testing.T) {
	f := newAuthFixture(t)

	body := `{"name":"Priya Sharma","email":"priya@example.com","password":"correct horse battery"}`
	req := httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.Signup(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "signup must set the session cookie")
	assert.Len(t, cookie.Value, 64)
	assert.True(t, cookie.HttpOnly)

	var resp accountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "priya@example.com", resp.Account.Email)
	assert.Equal(t, "free", resp.Account.Tier)
	assert.Equal(t, 3, resp.Account.Usage.DailyRemaining)
	assert.Equal(t, 15, resp.Account.Usage.MonthlyRemaining)
	assert.False(t, resp.Account.Usage.Unlimited)

	// The cookie resolves back to the account.
	account, err := f.accounts.GetBySessionToken(req.Context(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "priya@example.com", account.Email)
}

func TestSignup_DuplicateEmailConflicts(t *testing.T) {
	f := newAuthFixture(t)

	body := `{"name":"Priya Sharma","email":"priya@example.com","password":"correct horse battery"}`
	rec := httptest.NewRecorder()
	f.handler.Signup(rec, httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.Signup(rec, httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errBody JSONError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	assert.Equal(t, domain.ECONFLICT, errBody.Error.Code)
}

func TestLogin_WrongPasswordUnauthorized(t *testing.T) {
	f := newAuthFixture(t)

	signup := `{"name":"Priya Sharma","email":"priya@example.com","password":"correct horse battery"}`
	rec := httptest.NewRecorder()
	f.handler.Signup(rec, httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(signup)))
	require.Equal(t, http.StatusCreated, rec.Code)

	login := `{"email":"priya@example.com","password":"wrong password!"}`
	rec = httptest.NewRecorder()
	f.handler.Login(rec, httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(login)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))
}

func TestLogin_MalformedBodyIsBadRequest(t *testing.T) {
	f := newAuthFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, httptest.NewRequest("POST", "/api/auth/login", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout_ClearsCookieAndInvalidatesSession(t *testing.T) {
	f := newAuthFixture(t)

	signup := `{"name":"Priya Sharma","email":"priya@example.com","password":"correct horse battery"}`
	rec := httptest.NewRecorder()
	f.handler.Signup(rec, httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(signup)))
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.handler.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	_, err := f.accounts.GetBySessionToken(req.Context(), cookie.Value)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))

	// Logging out again without a cookie is still a 204.
	rec = httptest.NewRecorder()
	f.handler.Logout(rec, httptest.NewRequest("POST", "/api/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProfile_GetReturnsReconciledEntitlement(t *testing.T) {
	f := newAuthFixture(t)

	account, err := f.accounts.Register(t.Context(), domain.RegisterParams{
		Email:       "priya@example.com",
		Password:    "correct horse battery",
		DisplayName: "Priya Sharma",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/profile", nil)
	req = req.WithContext(auth.SetAccount(req.Context(), account))
	rec := httptest.NewRecorder()
	f.profile.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp accountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, account.ID.String(), resp.Account.ID)
	assert.Equal(t, 3, resp.Account.Usage.DailyRemaining)
	assert.Nil(t, resp.Account.Subscription)
}

func TestProfile_GetWithoutAccountUnauthorized(t *testing.T) {
	f := newAuthFixture(t)

	rec := httptest.NewRecorder()
	f.profile.Get(rec, httptest.NewRequest("GET", "/api/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfile_UpdateKeepsLedgerFields(t *testing.T) {
	f := newAuthFixture(t)

	account, err := f.accounts.Register(t.Context(), domain.RegisterParams{
		Email:       "priya@example.com",
		Password:    "correct horse battery",
		DisplayName: "Priya Sharma",
	})
	require.NoError(t, err)

	body := `{"name":"Priya S","gender_tag":"she/her"}`
	req := httptest.NewRequest("PUT", "/api/profile", strings.NewReader(body))
	req = req.WithContext(auth.SetAccount(req.Context(), account))
	rec := httptest.NewRecorder()
	f.profile.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp accountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Priya S", resp.Account.Name)
	assert.Equal(t, "she/her", resp.Account.GenderTag)
	assert.Equal(t, 3, resp.Account.Usage.DailyRemaining, "profile update never touches usage")
}
