package auth_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/EmpoweredVote/meresahar/internal/auth"
	"github.com/EmpoweredVote/meresahar/internal/db"
	"github.com/EmpoweredVote/meresahar/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// gdb is nil unless DATABASE_URL is set.
var gdb *gorm.DB

// testServer is the shared httptest server for all integration tests.
var testServer *httptest.Server

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.local")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		os.Exit(m.Run())
	}

	var err error
	gdb, err = db.Connect(databaseURL, 5)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}

	auth.Init(gdb)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(middleware.CORS([]string{"http://localhost:5173"}))
	r.Mount("/auth", auth.SetupRoutes(auth.NewHandler(gdb, time.Hour, false)))

	testServer = httptest.NewServer(r)
	code := m.Run()
	testServer.Close()
	os.Exit(code)
}

// createTestUser inserts a unique admin and removes it when the test ends.
func createTestUser(t *testing.T) (username, password string) {
	t.Helper()
	if gdb == nil {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	username = fmt.Sprintf("testadmin_%s", uuid.New().String()[:8])
	password = "TestPass123!"
	user, err := auth.CreateUser(gdb, username, password, auth.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	t.Cleanup(func() {
		gdb.Where("user_id = ?", user.UserID).Delete(&auth.Session{})
		gdb.Where("user_id = ?", user.UserID).Delete(&auth.User{})
	})

	return username, password
}

func newClientWithJar(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	return &http.Client{Jar: jar}
}

func loginUser(t *testing.T, client *http.Client, username, password string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := client.Post(testServer.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestLoginReturnsSessionCookie(t *testing.T) {
	username, password := createTestUser(t)
	client := newClientWithJar(t)

	resp := loginUser(t, client, username, password)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", resp.StatusCode, body)
	}
	if !strings.Contains(resp.Header.Get("Set-Cookie"), "session_id") {
		t.Errorf("expected Set-Cookie to contain 'session_id', got: %q", resp.Header.Get("Set-Cookie"))
	}

	var result map[string]string
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("invalid JSON body: %s", body)
	}
	if result["username"] != username || result["role"] != auth.RoleAdmin {
		t.Errorf("unexpected login body: %v", result)
	}
}

func TestWrongPasswordRejected(t *testing.T) {
	username, _ := createTestUser(t)
	client := newClientWithJar(t)

	resp := loginUser(t, client, username, "not-the-password")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d; body: %s", resp.StatusCode, body)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	username, password := createTestUser(t)
	client := newClientWithJar(t)

	loginResp := loginUser(t, client, username, password)
	if body := readBody(t, loginResp); loginResp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d %s", loginResp.StatusCode, body)
	}

	meResp, err := client.Get(testServer.URL + "/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	if body := readBody(t, meResp); meResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d; body: %s", meResp.StatusCode, body)
	}

	logoutResp, err := client.Post(testServer.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /auth/logout: %v", err)
	}
	if body := readBody(t, logoutResp); logoutResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /auth/logout, got %d; body: %s", logoutResp.StatusCode, body)
	}

	meResp, err = client.Get(testServer.URL + "/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me after logout: %v", err)
	}
	if body := readBody(t, meResp); meResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d; body: %s", meResp.StatusCode, body)
	}
}

func TestRoleLookup(t *testing.T) {
	username, _ := createTestUser(t)

	var user auth.User
	if err := gdb.First(&user, "username = ?", username).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	role, err := auth.SessionInfo{DB: gdb}.FindRoleByUserID(user.UserID)
	if err != nil || role != auth.RoleAdmin {
		t.Errorf("FindRoleByUserID = %q, %v", role, err)
	}

	if _, err := auth.CreateUser(gdb, username, "another", auth.RoleUser); err != auth.ErrUsernameTaken {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}
