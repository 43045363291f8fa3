//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const setupKey = "e2e-setup-key"

var (
	baseURL    string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	addr, err := freeAddr()
	if err != nil {
		log.Fatalf("free port: %v", err)
	}

	cfg := &Config{
		Addr:        addr,
		DatabaseURL: fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port()),
		Timezone:    "Asia/Jerusalem",
		Auth: AuthConfig{
			JWTSecret:  "e2e-secret",
			TokenTTL:   time.Hour,
			SetupKey:   setupKey,
			LoginBurst: 5,
			LoginRate:  1,
		},
		Orders:    OrdersConfig{VerifyCatalog: true, DefaultLimit: 50, MaxLimit: 200},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
		Graceful:  GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	appCtx, stop := context.WithCancel(zctx.Base(ctx, zap.NewNop()))
	done := make(chan error, 1)
	go func() { done <- Run(appCtx, zap.NewNop(), noopTelemetry{}, cfg) }()
	defer func() {
		stop()
		if err := <-done; err != nil {
			log.Printf("app: %v", err)
		}
	}()

	baseURL = "http://" + addr
	if err := waitReady(ctx, done); err != nil {
		log.Fatalf("app not ready: %v", err)
	}

	return m.Run()
}

func freeAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().String(), nil
}

func waitReady(ctx context.Context, done <-chan error) error {
	for {
		select {
		case err := <-done:
			return fmt.Errorf("exited early: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		resp, err := httpClient.Get(baseURL + "/readyz")
		if err != nil {
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
	}
}

func do(t *testing.T, method, path string, body any, token string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, baseURL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func adminToken(t *testing.T) string {
	t.Helper()

	// Setup succeeds once; later calls report the admin exists.
	resp, data := do(t, http.MethodPost, "/api/auth/setup", map[string]string{
		"email": "e2e@jachnun.test", "password": "pw", "name": "E2E", "setupKey": setupKey,
	}, "")
	require.Contains(t, []int{http.StatusOK, http.StatusBadRequest}, resp.StatusCode, string(data))

	resp, data = do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "e2e@jachnun.test", "password": "pw",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(data, &login))
	return login.Token
}

func TestHealth(t *testing.T) {
	resp, data := do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","message":"Doctor Jachnun API is running","version":"1.0.0"}`, string(data))

	resp, _ = do(t, http.MethodGet, "/livez", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, baseURL+"/api/orders/1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestMenu(t *testing.T) {
	resp, data := do(t, http.MethodGet, "/api/menu", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var menu struct {
		Items []json.RawMessage `json:"items"`
		Zones []json.RawMessage `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(data, &menu))
	assert.Len(t, menu.Items, 12)
	assert.Len(t, menu.Zones, 4)
}

func TestOrderLifecycle(t *testing.T) {
	token := adminToken(t)

	resp, data := do(t, http.MethodPost, "/api/orders", map[string]any{
		"customer": map[string]any{"name": "Dana", "phone": "052-221-2410", "address": "Herzl 1"},
		"delivery": map[string]any{"zone": "zone1", "fee": 20},
		"payment":  map[string]any{"method": "cash"},
		"items":    []map[string]any{{"id": 1, "price": 150, "quantity": 1}},
		"totals":   map[string]any{"subtotal": 150, "delivery": 20, "total": 170},
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var created struct {
		OrderID     int64  `json:"orderId"`
		OrderNumber string `json:"orderNumber"`
	}
	require.NoError(t, json.Unmarshal(data, &created))
	assert.True(t, strings.HasPrefix(created.OrderNumber, "DJ-"), created.OrderNumber)

	resp, data = do(t, http.MethodGet, "/api/orders/status/"+created.OrderNumber, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]any
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "pending", status["status"])
	assert.Equal(t, map[string]any{"subtotal": 150.0, "delivery": 20.0, "total": 170.0}, status["totals"])

	path := fmt.Sprintf("/api/orders/%d/status", created.OrderID)
	resp, _ = do(t, http.MethodPatch, path, map[string]string{"status": "confirmed"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data = do(t, http.MethodPatch, path, map[string]string{"status": "confirmed"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, data = do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", created.OrderID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var full map[string]any
	require.NoError(t, json.Unmarshal(data, &full))
	assert.Equal(t, "confirmed", full["status"])
	assert.NotNil(t, full["confirmed_at"])
	assert.Equal(t, "0522212410", full["customer_phone"])
	assert.Equal(t, "סיר ג'חנון המלך", full["items"].([]any)[0].(map[string]any)["name"])

	resp, data = do(t, http.MethodGet, "/api/customers/phone/0522212410", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"found":true`)

	resp, data = do(t, http.MethodGet, "/api/orders/stats/summary", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		CustomerCount int64 `json:"customerCount"`
	}
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.GreaterOrEqual(t, stats.CustomerCount, int64(1))
}

func TestOrderRejectsOffMenuPrice(t *testing.T) {
	resp, data := do(t, http.MethodPost, "/api/orders", map[string]any{
		"customer": map[string]any{"name": "Dana", "phone": "0522212410"},
		"delivery": map[string]any{"zone": "pickup", "fee": 0},
		"items":    []map[string]any{{"id": 1, "price": 1, "quantity": 1}},
	}, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(data))
}
