package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/postadepo/server/internal/accounts"
	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/config"
	"github.com/postadepo/server/internal/demo"
	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/oauth"
	"github.com/postadepo/server/internal/store"
	"github.com/postadepo/server/internal/sync"
)

type fakeExchanger struct {
	tokens *oauth.TokenSet
	err    error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*oauth.TokenSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth.TokenSet, error) {
	return f.Exchange(ctx, "")
}

type fakeProfiles struct {
	profile *accounts.Profile
}

func (f *fakeProfiles) FetchProfile(ctx context.Context, accessToken string) (*accounts.Profile, error) {
	return f.profile, nil
}

type fakeProvider struct {
	messages []sync.RemoteMessage
	cursor   string
	gotMax   int
}

func (f *fakeProvider) FetchMessages(ctx context.Context, accessToken, cursor string, max int) ([]sync.RemoteMessage, string, error) {
	f.gotMax = max
	return f.messages, f.cursor, nil
}

type testServer struct {
	router   *gin.Engine
	store    *store.Store
	auth     *auth.Service
	jwt      *auth.JWT
	cfg      *config.Config
	provider *fakeProvider
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            "8080",
		DBPath:          ":memory:",
		JWTSecret:       "test-secret",
		FrontendURL:     "http://localhost:3000",
		MSClientID:      "client-id",
		MSClientSecret:  "client-secret",
		MSTenant:        "common",
		RedirectURI:     "http://localhost:8080/api/auth/callback",
		OAuthScopes:     []string{"openid", "Mail.Read"},
		StateTTL:        10 * time.Minute,
		ProviderTimeout: 5 * time.Second,
		SyncBatchSize:   50,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	authSvc := auth.NewService(s)
	jwt := auth.NewJWT(cfg.JWTSecret, s)
	states := oauth.NewStateTracker(s, cfg.StateTTL)
	oauthClient := oauth.NewClient(cfg)

	exchanger := &fakeExchanger{tokens: &oauth.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}}
	profiles := &fakeProfiles{profile: &accounts.Profile{
		Email:       "box@outlook.com",
		DisplayName: "Box Owner",
	}}
	connector := accounts.NewConnector(s, states, exchanger, profiles, nil)

	provider := &fakeProvider{}
	engine := sync.NewEngine(s, exchanger, nil, cfg.SyncBatchSize)
	engine.Register("outlook", provider)

	r := gin.New()
	NewServer(cfg, s, authSvc, jwt, states, oauthClient, connector, engine).Register(r)

	return &testServer{
		router:   r,
		store:    s,
		auth:     authSvc,
		jwt:      jwt,
		cfg:      cfg,
		provider: provider,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (ts *testServer) loginAs(t *testing.T, userType models.UserType) (*models.User, string) {
	t.Helper()
	email := fmt.Sprintf("%s-user@example.com", userType)
	user, _, err := ts.auth.EnsureUser(context.Background(), "Test User", email, "password1", userType)
	require.NoError(t, err)
	token, err := ts.jwt.Issue(user)
	require.NoError(t, err)
	return user, token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig())
	w := ts.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", decode(t, w)["status"])
}

func TestRegisterThenLoginRequiresApproval(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "New User", "email": "new@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "new@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	user, err := ts.store.GetUserByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	require.NoError(t, ts.store.ApproveUser(context.Background(), user.ID))

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "new@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, decode(t, w)["token"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, _ = ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "email-user@example.com", "password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDemoLoginProvisionsMailbox(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": demo.Email, "password": demo.Password,
	})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)

	w = ts.do(t, http.MethodGet, "/api/emails?folder=all", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decode(t, w)["folderCounts"].(map[string]any)
	require.EqualValues(t, 50, counts["all"])

	// A second login must not reseed the mailbox.
	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": demo.Email, "password": demo.Password,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/emails?folder=all", token, nil)
	counts = decode(t, w)["folderCounts"].(map[string]any)
	require.EqualValues(t, 50, counts["all"])
}

func TestEmailsRequireAuth(t *testing.T) {
	ts := newTestServer(t, testConfig())
	w := ts.do(t, http.MethodGet, "/api/emails", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCallbackMissingParams(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(t, http.MethodGet, "/api/auth/callback?state=abc", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "code", decode(t, w)["field"])

	w = ts.do(t, http.MethodGet, "/api/auth/callback?code=abc", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "state", decode(t, w)["field"])
}

func TestCallbackProviderError(t *testing.T) {
	ts := newTestServer(t, testConfig())
	w := ts.do(t, http.MethodGet, "/api/auth/callback?error=access_denied", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode(t, w)["error"], "denied")
}

func TestCallbackRedirectsToFrontend(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodGet, "/api/outlook/auth-url", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)["state"].(string)

	w = ts.do(t, http.MethodGet, "/api/auth/callback?code=the-code&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "the-code", loc.Query().Get("code"))
	require.Equal(t, state, loc.Query().Get("state"))
	require.Contains(t, w.Header().Get("Location"), ts.cfg.FrontendURL)

	// The callback only peeks at the state; connect-account still consumes it.
	w = ts.do(t, http.MethodPost, "/api/outlook/connect-account?code=auth-code&state="+url.QueryEscape(state), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	ts := newTestServer(t, testConfig())

	// A state that was never issued must not reach the frontend redirect.
	w := ts.do(t, http.MethodGet, "/api/auth/callback?code=dummy&state=never-issued", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode(t, w)["error"], "invalid")
	require.Empty(t, w.Header().Get("Location"))
}

func TestAuthURLCarriesRedirectURI(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodGet, "/api/outlook/auth-url", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.NotEmpty(t, body["state"])
	require.Equal(t, ts.cfg.RedirectURI, body["redirect_uri"])

	authURL, err := url.Parse(body["auth_url"].(string))
	require.NoError(t, err)
	require.Equal(t, body["state"], authURL.Query().Get("state"))
	// The URI inside the authorization URL must be the exact value the
	// token exchange will send.
	require.Equal(t, body["redirect_uri"], authURL.Query().Get("redirect_uri"))
}

func TestAuthURLUnavailableWhenUnconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.MSClientID = ""
	cfg.MSClientSecret = ""
	ts := newTestServer(t, cfg)
	_, token := ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodGet, "/api/outlook/auth-url", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = ts.do(t, http.MethodGet, "/api/outlook/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decode(t, w)["available"])
}

func (ts *testServer) connectAccount(t *testing.T, token string) string {
	t.Helper()
	w := ts.do(t, http.MethodGet, "/api/outlook/auth-url", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)["state"].(string)

	w = ts.do(t, http.MethodPost, "/api/outlook/connect-account?code=auth-code&state="+url.QueryEscape(state), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	account := decode(t, w)["account"].(map[string]any)
	return account["id"].(string)
}

func TestConnectAccountFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)

	accountID := ts.connectAccount(t, token)
	require.NotEmpty(t, accountID)

	w := ts.do(t, http.MethodGet, "/api/outlook/accounts", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	accts := decode(t, w)["accounts"].([]any)
	require.Len(t, accts, 1)
	require.Equal(t, "box@outlook.com", accts[0].(map[string]any)["email"])
}

func TestConnectAccountMissingParams(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodPost, "/api/outlook/connect-account?state=abc", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "code", decode(t, w)["field"])
}

func TestConnectAccountRejectsStaleState(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodPost, "/api/outlook/connect-account?code=auth-code&state=never-issued", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountSync(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)
	accountID := ts.connectAccount(t, token)

	ts.provider.messages = []sync.RemoteMessage{{
		ID:        "msg-1",
		Subject:   "Hello",
		Sender:    "sender@example.com",
		Recipient: "box@outlook.com",
		Body:      "body",
		Folder:    "Inbox",
		Received:  time.Now().UTC(),
	}}
	ts.provider.cursor = "cursor-1"

	w := ts.do(t, http.MethodPost, "/api/outlook/sync?account_id="+accountID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.EqualValues(t, 1, body["synced_count"])
	require.EqualValues(t, 0, body["error_count"])
}

func TestAccountSyncClampsMax(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)
	accountID := ts.connectAccount(t, token)

	// A caller-supplied max beyond the batch size is cut down before it
	// reaches the provider.
	w := ts.do(t, http.MethodPost, "/api/outlook/sync?account_id="+accountID+"&max=100000", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, ts.cfg.SyncBatchSize, ts.provider.gotMax)

	w = ts.do(t, http.MethodPost, "/api/outlook/sync?account_id="+accountID+"&max=-5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, ts.cfg.SyncBatchSize, ts.provider.gotMax)

	w = ts.do(t, http.MethodPost, "/api/outlook/sync?account_id="+accountID+"&max=10", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 10, ts.provider.gotMax)
}

func TestAccountSyncScopedToOwner(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, ownerToken := ts.loginAs(t, models.UserTypeEmail)
	accountID := ts.connectAccount(t, ownerToken)

	_, otherToken := ts.loginAs(t, models.UserTypeOutlook)
	w := ts.do(t, http.MethodPost, "/api/outlook/sync?account_id="+accountID, otherToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, token := ts.loginAs(t, models.UserTypeEmail)

	w := ts.do(t, http.MethodGet, "/api/admin/users", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminApprovalFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, adminToken := ts.loginAs(t, models.UserTypeAdmin)

	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "Pending", "email": "pending@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/admin/pending-users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["count"])

	user, err := ts.store.GetUserByEmail(context.Background(), "pending@example.com")
	require.NoError(t, err)

	w = ts.do(t, http.MethodPost, "/api/admin/approve-user/"+user.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	approved, err := ts.store.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, approved.Approved)
}

func TestAdminBulkReject(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, adminToken := ts.loginAs(t, models.UserTypeAdmin)

	var ids []string
	for i := 0; i < 3; i++ {
		w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
			"name":     fmt.Sprintf("User %d", i),
			"email":    fmt.Sprintf("user%d@example.com", i),
			"password": "secret1",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode(t, w)["user_id"].(string))
	}

	w := ts.do(t, http.MethodPost, "/api/admin/bulk-reject-users", adminToken, gin.H{"user_ids": ids})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 3, decode(t, w)["rejected_count"])

	for _, id := range ids {
		_, err := ts.store.GetUser(context.Background(), id)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestSystemLogsExport(t *testing.T) {
	ts := newTestServer(t, testConfig())
	_, adminToken := ts.loginAs(t, models.UserTypeAdmin)
	require.NoError(t, ts.store.AppendLog(context.Background(), "info", "test.event", "message", ""))

	w := ts.do(t, http.MethodGet, "/api/admin/system-logs/export", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	require.EqualValues(t, 1, decode(t, w)["count"])
}

func TestMailActions(t *testing.T) {
	ts := newTestServer(t, testConfig())
	user, token := ts.loginAs(t, models.UserTypeEmail)

	n, err := demo.SyncBatch(context.Background(), ts.store, user.ID, user.Email)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	w := ts.do(t, http.MethodGet, "/api/emails?folder=inbox", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	emails := decode(t, w)["emails"].([]any)
	require.Len(t, emails, 3)
	mailID := emails[0].(map[string]any)["id"].(string)

	w = ts.do(t, http.MethodPut, "/api/emails/"+mailID+"/read", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, "/api/emails/"+mailID+"/important", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["important"])

	w = ts.do(t, http.MethodDelete, "/api/emails/"+mailID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/storage-info", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, decode(t, w)["totalEmails"])
}

func TestWriteEMLMapsContentType(t *testing.T) {
	mail := &models.Mail{
		Sender:      "sender@example.com",
		Recipient:   "box@example.com",
		Subject:     "Hello",
		Content:     "<p>hi</p>",
		ContentType: "html",
		Date:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	writeEML(&buf, mail)
	require.Contains(t, buf.String(), "Content-Type: text/html; charset=utf-8\r\n")

	// The stored marker is "text"/"html", never a MIME type; plain text and
	// unset both map to text/plain.
	for _, marker := range []string{"text", ""} {
		buf.Reset()
		mail.ContentType = marker
		writeEML(&buf, mail)
		require.Contains(t, buf.String(), "Content-Type: text/plain; charset=utf-8\r\n")
	}
}

func TestExportEmailsJSON(t *testing.T) {
	ts := newTestServer(t, testConfig())
	user, token := ts.loginAs(t, models.UserTypeEmail)
	_, err := demo.SyncBatch(context.Background(), ts.store, user.ID, user.Email)
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/api/export-emails", token, gin.H{"format": "json"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "postadepo-export.json")
	require.EqualValues(t, 3, decode(t, w)["count"])
}
