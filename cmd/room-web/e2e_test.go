//go:build e2e
// +build e2e

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/gorilla/websocket"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"room-web/internal/apispec"
	"room-web/internal/backend"
	"room-web/internal/config"
	"room-web/internal/messaging"
	"room-web/internal/middleware"
	"room-web/internal/observability"
	"room-web/internal/repository/postgres"
	"room-web/internal/security"
	"room-web/internal/session"
	"room-web/internal/testutil"
	ws "room-web/internal/websocket"
	"room-web/internal/web"
)

const (
	e2eOrigin = "http://room.test"
	e2eSecret = "e2e-session-secret-0123456789"
)

var (
	databaseURL string
	rabbitURL   string
	authURL     string
	apiURL      string
)

// TestMain starts PostgreSQL, RabbitMQ and fake remote services shared by
// every instance the tests boot.
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		cancel()
	}

	pgCleanup, err := startPostgres(ctx)
	if err != nil {
		log.Fatalf("failed to start PostgreSQL: %v", err)
	}
	cleanups = append(cleanups, pgCleanup)

	rmqCleanup, err := startRabbitMQ(ctx)
	if err != nil {
		cleanup()
		log.Fatalf("failed to start RabbitMQ: %v", err)
	}
	cleanups = append(cleanups, rmqCleanup)

	authSrv := httptest.NewServer(fakeAuthService())
	apiSrv := httptest.NewServer(fakeListingsAPI())
	cleanups = append(cleanups, authSrv.Close, apiSrv.Close)
	authURL, apiURL = authSrv.URL, apiSrv.URL

	code := m.Run()

	cleanup()
	os.Exit(code)
}

// streamContainerLogs starts a goroutine that streams container logs to stdout with a prefix
func streamContainerLogs(ctx context.Context, container testcontainers.Container, prefix string) {
	go func() {
		reader, err := container.Logs(ctx)
		if err != nil {
			log.Printf("[%s] failed to get logs: %v", prefix, err)
			return
		}
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			log.Printf("[%s] %s", prefix, scanner.Text())
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			log.Printf("[%s] log reader error: %v", prefix, err)
		}
	}()
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, prefix, port string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	streamContainerLogs(ctx, container, prefix)

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}
	return container, host + ":" + mapped.Port(), nil
}

func startPostgres(ctx context.Context) (func(), error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "roomdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}, "PostgreSQL", "5432")
	if err != nil {
		return nil, err
	}

	databaseURL = fmt.Sprintf("postgres://test:test@%s/roomdb?sslmode=disable", addr)
	return func() { container.Terminate(ctx) }, nil
}

func startRabbitMQ(ctx context.Context) (func(), error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(90 * time.Second),
	}, "RabbitMQ", "5672")
	if err != nil {
		return nil, err
	}

	rabbitURL = fmt.Sprintf("amqp://guest:guest@%s/", addr)
	return func() { container.Terminate(ctx) }, nil
}

// fakeAuthService answers like a GoTrue server for any credentials except
// the password "wrong".
func fakeAuthService() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password == "wrong" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}

		exp := time.Now().Add(time.Hour)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  testutil.AccessToken("user-"+body.Email, body.Email, exp),
			"refresh_token": "refresh-" + body.Email,
			"expires_at":    exp.Unix(),
			"user":          map[string]any{"id": "user-" + body.Email, "email": body.Email},
		})
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		claims, err := backend.ParseAccessClaims(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            claims.Subject,
			"email":         claims.Email,
			"user_metadata": map[string]any{"name": "Alice Martin"},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/auth/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func fakeListingsAPI() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/listings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"l-1","title":"Studio Akwa","price":"150000","currency":"XAF","city":"Douala","district":"Akwa","type":"studio","status":"available"},
			{"id":"","title":"dropped"}
		]`))
	})
	return mux
}

// startInstance boots one complete app against the shared infrastructure,
// as main does with DATABASE_URL and RABBITMQ_URL set.
func startInstance(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		AllowedOrigins: e2eOrigin,
		SessionTTL:     time.Hour,
		BackendTimeout: 5 * time.Second,
	}

	sealer, err := security.NewSealer(e2eSecret)
	require.NoError(t, err)

	db, err := config.NewPostgresConnection(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, postgres.EnsureSchema(ctx, postgres.NewTxManager(db)))

	repo, err := postgres.NewSessionRepository(db, sealer)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, rabbitURL)
	rmqCancel()
	require.NoError(t, err)
	t.Cleanup(func() { rmq.Close() })

	authClient, err := backend.NewAuthClient(authURL, "anon-key", cfg.BackendTimeout)
	require.NoError(t, err)
	listingsClient, err := backend.NewListingsClient(apiURL, cfg.BackendTimeout)
	require.NoError(t, err)

	broker := session.NewBroker()
	require.NoError(t, messaging.NewEventConsumer(rmq, broker).Start(ctx))

	provider := session.NewProvider(authClient, repo,
		session.WithBroker(broker),
		session.WithTTL(cfg.SessionTTL),
		session.WithPublisher(messaging.NewFanoutPublisher(broker, rmq)),
	)
	provider.Start(ctx)
	t.Cleanup(provider.Close)

	renderer, err := web.NewRenderer()
	require.NoError(t, err)
	doc, err := apispec.Load()
	require.NoError(t, err)
	validator, err := middleware.OpenAPIValidator(doc, middleware.DefaultOpenAPIValidatorConfig(false))
	require.NoError(t, err)

	limiter := middleware.NewRateLimiter(100, 100)
	t.Cleanup(limiter.Stop)

	srv := httptest.NewServer(newRouter(routerDeps{
		Config:      cfg,
		Provider:    provider,
		Listings:    listingsClient,
		Renderer:    renderer,
		AuthLimiter: limiter,
		Validator:   validator,
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestClient drives an instance like a browser that does not follow
// redirects, so each hop can be asserted.
type TestClient struct {
	t      *testing.T
	http   *http.Client
	cookie *http.Cookie
}

func NewTestClient(t *testing.T) *TestClient {
	return &TestClient{
		t: t,
		http: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *TestClient) send(req *http.Request) (*http.Response, string) {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	for _, ck := range resp.Cookies() {
		if ck.Name == middleware.SessionCookieName {
			c.cookie = ck
			if ck.MaxAge < 0 {
				c.cookie = nil
			}
		}
	}
	return resp, string(body)
}

func (c *TestClient) Get(srv *httptest.Server, path string) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(c.t, err)
	return c.send(req)
}

func (c *TestClient) PostForm(srv *httptest.Server, path string, form url.Values) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req)
}

// DialSession opens the auth-state socket with the client's cookie.
func (c *TestClient) DialSession(srv *httptest.Server) *websocket.Conn {
	c.t.Helper()
	header := http.Header{"Origin": {e2eOrigin}}
	if c.cookie != nil {
		header.Set("Cookie", c.cookie.String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session", header)
	require.NoError(c.t, err)
	resp.Body.Close()
	c.t.Cleanup(func() { conn.Close() })
	return conn
}

// A session opened on one instance is valid on the other and its sign-out
// reaches browsers connected to either.
func TestE2E_SessionSharedAcrossInstances(t *testing.T) {
	a := startInstance(t)
	b := startInstance(t)
	browser := NewTestClient(t)

	resp, _ := browser.PostForm(a, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret"},
		"next":     {"/listings"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/listings", resp.Header.Get("Location"))
	require.NotNil(t, browser.cookie, "session cookie not set")

	resp, body := browser.Get(b, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "alice@example.com")
	assert.Contains(t, body, "Alice Martin")

	before := promtestutil.ToFloat64(observability.SessionSubscribersActive)
	conn := browser.DialSession(b)
	require.Eventually(t, func() bool {
		return promtestutil.ToFloat64(observability.SessionSubscribersActive) > before
	}, 5*time.Second, 20*time.Millisecond)

	_, body = browser.Get(a, "/dashboard")
	resp, _ = browser.PostForm(a, "/logout", url.Values{"csrf_token": {extractCSRF(t, body)}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var msg ws.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "auth_state", msg.Type)
	assert.Equal(t, string(session.EventSignedOut), msg.Event)
	assert.False(t, msg.Authenticated)
}

func TestE2E_SignedOutSessionRejectedEverywhere(t *testing.T) {
	a := startInstance(t)
	b := startInstance(t)
	browser := NewTestClient(t)

	browser.PostForm(a, "/login", url.Values{"email": {"bob@example.com"}, "password": {"secret"}})
	require.NotNil(t, browser.cookie)
	stale := browser.cookie

	_, body := browser.Get(b, "/dashboard")
	resp, _ := browser.PostForm(b, "/logout", url.Values{"csrf_token": {extractCSRF(t, body)}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	browser.cookie = stale
	resp, _ = browser.Get(a, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fdashboard", resp.Header.Get("Location"))
}

func TestE2E_LoginRejected(t *testing.T) {
	a := startInstance(t)
	browser := NewTestClient(t)

	resp, body := browser.PostForm(a, "/login", url.Values{"email": {"carol@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid login credentials")
	assert.Nil(t, browser.cookie)
}

func TestE2E_ListingsFromRemoteAPI(t *testing.T) {
	a := startInstance(t)
	browser := NewTestClient(t)

	resp, body := browser.Get(a, "/listings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Studio Akwa")
	assert.NotContains(t, body, "dropped")

	resp, body = browser.Get(a, "/api/v1/listings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listings []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &listings))
	require.Len(t, listings, 1)
	assert.Equal(t, "l-1", listings[0]["id"])

	resp, _ = browser.Get(a, "/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
