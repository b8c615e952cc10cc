package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/ai"
	"github.com/pentabot/backend/internal/auth"
	"github.com/pentabot/backend/internal/chat"
	"github.com/pentabot/backend/internal/config"
	"github.com/pentabot/backend/internal/credits"
	"github.com/pentabot/backend/internal/db"
	"github.com/pentabot/backend/internal/httpapi/handlers"
	"github.com/pentabot/backend/internal/models"
	"github.com/pentabot/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	reply string
	err   error
}

func (p *fakeProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	_ = messages
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (r *fakeRevoker) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[jti] = ttl
	return nil
}

func (r *fakeRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[jti]
	return ok, nil
}

type fakePublisher struct {
	published []string
}

func (p *fakePublisher) PublishJob(ctx context.Context, jobID string) error {
	p.published = append(p.published, jobID)
	return nil
}

type fakeOAuth struct {
	profile *auth.GoogleProfile
	err     error
	codes   []string
}

func (o *fakeOAuth) NewVerifier() string { return "verifier-1" }

func (o *fakeOAuth) AuthCodeURL(state, verifier string) string {
	return "https://accounts.example/auth?state=" + state + "&v=" + verifier
}

func (o *fakeOAuth) Profile(ctx context.Context, code, verifier string) (*auth.GoogleProfile, error) {
	o.codes = append(o.codes, code+"/"+verifier)
	return o.profile, o.err
}

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	handler *handlers.Handler
	revoker *fakeRevoker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, &fakeProvider{reply: "PARAGRAPHS: Hello there. Nice to meet you"})
}

func newTestServerWith(t *testing.T, provider ai.Provider) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Connect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.FromEnv(func(string) string { return "" })
	cfg.JWTSecret = "router-test"

	log := zap.NewNop()
	gen := ai.NewGenerator(provider, ai.GeneratorConfig{Timeout: time.Second}, log)
	chatSvc := chat.NewService(chat.NewRepo(gdb), credits.NewLedger(gdb), gen, chat.Options{}, log)
	usersSvc := users.NewService(gdb, users.Config{JWTSecret: cfg.JWTSecret, JWTTTL: time.Hour, DefaultCredits: 3}, log)

	h := handlers.NewHandler(gdb, usersSvc, chatSvc, log)
	rev := &fakeRevoker{revoked: map[string]time.Duration{}}
	h.Tokens = rev

	return &testServer{router: NewRouter(h, cfg, rev, log), db: gdb, handler: h, revoker: rev}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

func (s *testServer) raw(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(t *testing.T, username string) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("signup: %d %v", w.Code, body)
	}
	return body["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	token := s.signup(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"username": "alice", "email": "x@example.com", "password": "pw"})
	if w.Code != http.StatusBadRequest || body["msg"] != "User exists" {
		t.Fatalf("duplicate signup: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodPost, "/api/auth/signin", "", gin.H{"username": "alice", "password": "nope"})
	if w.Code != http.StatusBadRequest || body["msg"] != "Invalid credentials" {
		t.Fatalf("bad signin: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodPost, "/api/auth/signin", "", gin.H{"username": "alice", "password": "secret"})
	if w.Code != http.StatusOK || body["token"] == "" {
		t.Fatalf("signin: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, "/api/auth/verify", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d %v", w.Code, body)
	}
	user := body["user"].(map[string]any)
	if user["role"] != models.RoleAdmin || user["credits"].(float64) != 3 {
		t.Fatalf("unexpected user %v", user)
	}

	w, body = s.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if w.Code != http.StatusOK || body["msg"] != "Logged out" {
		t.Fatalf("logout: %d %v", w.Code, body)
	}
	if len(s.revoker.revoked) != 1 {
		t.Fatalf("expected one revoked token, got %d", len(s.revoker.revoked))
	}
	if w, _ := s.do(t, http.MethodGet, "/api/auth/verify", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: %d", w.Code)
	}
}

func TestGoogleSignin(t *testing.T) {
	s := newTestServer(t)

	if w, _ := s.do(t, http.MethodGet, "/api/auth/google", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("without provider: %d", w.Code)
	}

	oauth := &fakeOAuth{profile: &auth.GoogleProfile{Email: "ann@example.com", VerifiedEmail: true, Name: "Ann"}}
	s.handler.OAuth = oauth

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("redirect: %d", w.Code)
	}
	cookies := w.Result().Cookies()
	var state string
	for _, ck := range cookies {
		if ck.Name == "oauth_state" {
			state = ck.Value
			if !ck.HttpOnly {
				t.Fatalf("state cookie must be http-only")
			}
		}
	}
	if state == "" || !strings.Contains(w.Header().Get("Location"), "state="+state) {
		t.Fatalf("state not carried: cookies=%v location=%q", cookies, w.Header().Get("Location"))
	}

	callback := func(query string, withCookies bool) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?"+query, nil)
		if withCookies {
			for _, ck := range cookies {
				req.AddCookie(ck)
			}
		}
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		var out map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
		return w, out
	}

	if w, body := callback("state=forged&code=c1", true); w.Code != http.StatusBadRequest || body["msg"] != "Invalid OAuth state" {
		t.Fatalf("forged state: %d %v", w.Code, body)
	}
	if w, body := callback("state="+state+"&code=c1", false); w.Code != http.StatusBadRequest {
		t.Fatalf("missing cookie: %d %v", w.Code, body)
	}
	if w, body := callback("state="+state+"&error=access_denied", true); w.Code != http.StatusUnauthorized || body["msg"] != "Google authentication failed" {
		t.Fatalf("denied consent: %d %v", w.Code, body)
	}
	if len(oauth.codes) != 0 {
		t.Fatalf("exchange attempted on rejected callbacks: %v", oauth.codes)
	}

	w, body := callback("state="+state+"&code=c1", true)
	if w.Code != http.StatusOK || body["token"] == "" {
		t.Fatalf("callback: %d %v", w.Code, body)
	}
	user := body["user"].(map[string]any)
	if user["email"] != "ann@example.com" || user["credits"].(float64) != 3 {
		t.Fatalf("unexpected user %v", user)
	}
	if len(oauth.codes) != 1 || oauth.codes[0] != "c1/verifier-1" {
		t.Fatalf("unexpected exchanges %v", oauth.codes)
	}

	w, body = s.do(t, http.MethodGet, "/api/auth/verify", body["token"].(string), nil)
	if w.Code != http.StatusOK || body["user"].(map[string]any)["email"] != "ann@example.com" {
		t.Fatalf("verify oauth token: %d %v", w.Code, body)
	}

	oauth.profile, oauth.err = nil, errors.New("exchange code: invalid_grant")
	if w, body := callback("state="+state+"&code=c2", true); w.Code != http.StatusUnauthorized || strings.Contains(w.Body.String(), "invalid_grant") {
		t.Fatalf("failed exchange: %d %v", w.Code, body)
	}
}

func TestChatRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	for _, tok := range []string{"", "garbage"} {
		w, body := s.do(t, http.MethodGet, "/api/chat/chats", tok, nil)
		if w.Code != http.StatusUnauthorized || body["msg"] == nil {
			t.Fatalf("token %q: %d %v", tok, w.Code, body)
		}
	}
}

func TestChatExchangeAndReadPaths(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/chat/message", token, gin.H{"message": "hi there"})
	if w.Code != http.StatusOK {
		t.Fatalf("send: %d %v", w.Code, body)
	}
	if body["reply"] != "Hello there.\nNice to meet you." || body["chatTitle"] != "hi there" || body["credits"].(float64) != 2 {
		t.Fatalf("unexpected send response %v", body)
	}
	chatID := uint64(body["chatId"].(float64))

	// chatId as a string continues the same chat
	w, body = s.do(t, http.MethodPost, "/api/chat/message", token, gin.H{"message": "again", "chatId": fmt.Sprint(chatID)})
	if w.Code != http.StatusOK || uint64(body["chatId"].(float64)) != chatID {
		t.Fatalf("second send: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, "/api/chat/chats", token, nil)
	chats := body["chats"].([]any)
	if w.Code != http.StatusOK || len(chats) != 1 {
		t.Fatalf("list: %d %v", w.Code, body)
	}
	first := chats[0].(map[string]any)
	if first["title"] != "hi there" || first["lastMessage"] != "Hello there.\nNice to meet you." {
		t.Fatalf("unexpected summary %v", first)
	}

	w, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/chat/chats/%d", chatID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get chat: %d %v", w.Code, body)
	}
	msgs := body["chat"].(map[string]any)["messages"].([]any)
	if len(msgs) != 4 || msgs[0].(map[string]any)["text"] != "hi there" || msgs[1].(map[string]any)["sender"] != "ai" {
		t.Fatalf("unexpected messages %v", msgs)
	}

	w, body = s.do(t, http.MethodGet, "/api/chat/credits", token, nil)
	if w.Code != http.StatusOK || body["credits"].(float64) != 1 {
		t.Fatalf("credits: %d %v", w.Code, body)
	}

	bob := s.signup(t, "bob")
	if w, _ := s.do(t, http.MethodGet, fmt.Sprintf("/api/chat/chats/%d", chatID), bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign chat visible: %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/chats/%d", chatID), bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: %d", w.Code)
	}

	w, body = s.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/chats/%d", chatID), token, nil)
	if w.Code != http.StatusOK || body["msg"] != "Chat deleted successfully" {
		t.Fatalf("delete: %d %v", w.Code, body)
	}
	if w, _ := s.do(t, http.MethodGet, "/api/chat/chats/not-a-number", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("malformed id: %d", w.Code)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/chat/message", token, gin.H{"message": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank message: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodPost, "/api/chat/message", token, gin.H{"chatId": 1})
	if w.Code != http.StatusBadRequest || body["msg"] != "Message is required" {
		t.Fatalf("missing message: %d %v", w.Code, body)
	}

	w = s.raw(t, http.MethodPost, "/api/chat/message", token, `{"message": "hi"`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid request body") {
		t.Fatalf("malformed body: %d %s", w.Code, w.Body.String())
	}

	w = s.raw(t, http.MethodPost, "/api/chat/message", token, `{"message": "hi", "chatId": "abc"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid request body") {
		t.Fatalf("non-numeric chat id: %d %s", w.Code, w.Body.String())
	}

	if err := s.db.Model(&models.User{}).Where("username = ?", "alice").Update("credits", 0).Error; err != nil {
		t.Fatalf("drain credits: %v", err)
	}
	w, body = s.do(t, http.MethodPost, "/api/chat/message", token, gin.H{"message": "hello"})
	if w.Code != http.StatusForbidden || body["msg"] != "Insufficient credits" || body["credits"].(float64) != 0 {
		t.Fatalf("no credits: %d %v", w.Code, body)
	}
}

func TestSendMessage_ProviderFailureHidesDetails(t *testing.T) {
	secret := "upstream quota exceeded: key sk-live-1234"
	s := newTestServerWith(t, &fakeProvider{err: errors.New(secret)})
	token := s.signup(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/chat/message", token, gin.H{"message": "hello"})
	if w.Code != http.StatusInternalServerError || body["msg"] != "AI generation failed" {
		t.Fatalf("provider failure: %d %v", w.Code, body)
	}
	if strings.Contains(w.Body.String(), "sk-live") || strings.Contains(w.Body.String(), "quota") {
		t.Fatalf("provider error leaked: %s", w.Body.String())
	}

	w, body = s.do(t, http.MethodGet, "/api/chat/credits", token, nil)
	if w.Code != http.StatusOK || body["credits"].(float64) != 3 {
		t.Fatalf("credits after failure: %d %v", w.Code, body)
	}
}

func TestSendMessageAsync(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	if w, _ := s.do(t, http.MethodPost, "/api/chat/message/async", token, gin.H{"message": "hi"}); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("without publisher: %d", w.Code)
	}

	pub := &fakePublisher{}
	s.handler.Jobs = pub

	w, body := s.do(t, http.MethodPost, "/api/chat/message/async", token, gin.H{"message": "hi"}, "Idempotency-Key", "k1")
	if w.Code != http.StatusAccepted || body["status"] != "queued" {
		t.Fatalf("enqueue: %d %v", w.Code, body)
	}
	jobID := body["jobId"].(string)

	w, body = s.do(t, http.MethodPost, "/api/chat/message/async", token, gin.H{"message": "hi"}, "Idempotency-Key", "k1")
	if w.Code != http.StatusOK || body["jobId"] != jobID {
		t.Fatalf("replay: %d %v", w.Code, body)
	}
	if len(pub.published) != 2 || pub.published[1] != jobID {
		t.Fatalf("unexpected publishes %v", pub.published)
	}

	w, body = s.do(t, http.MethodGet, "/api/chat/jobs/"+jobID, token, nil)
	if w.Code != http.StatusOK || body["job"].(map[string]any)["status"] != "queued" {
		t.Fatalf("get job: %d %v", w.Code, body)
	}

	bob := s.signup(t, "bob")
	if w, _ := s.do(t, http.MethodGet, "/api/chat/jobs/"+jobID, bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign job visible: %d", w.Code)
	}
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || body["database"] != "connected" {
		t.Fatalf("health: %d %v", w.Code, body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}

	w, body = s.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || body["message"] != "PentaBot API is running" {
		t.Fatalf("root: %d %v", w.Code, body)
	}

	if w, _ := s.do(t, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodPut, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", w.Code)
	}
}
