package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/state"
	"github.com/elys-network/lpm/internal/types"
)

type flakyStore struct {
	*state.MemoryStore
	pingErr error
}

func (s *flakyStore) Ping(ctx context.Context) error {
	return s.pingErr
}

type balances map[solana.PublicKey]uint64

func (b balances) VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error) {
	out := make([]types.VaultBalance, 0, len(vaults))
	for _, v := range vaults {
		if amount, ok := b[v]; ok {
			out = append(out, types.VaultBalance{Vault: v, Amount: amount, FetchedAt: time.Now().UTC()})
		}
	}
	return out, nil
}

type brokenBalances struct{ calls int }

func (b *brokenBalances) VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error) {
	b.calls++
	return nil, errors.New("rpc unavailable")
}

func seed(t *testing.T) (*state.MemoryStore, types.Manager) {
	t.Helper()
	store := state.NewMemoryStore()
	rec := types.Manager{
		ID:        solana.NewWallet().PublicKey(),
		Principal: solana.NewWallet().PublicKey(),
		Pool:      solana.NewWallet().PublicKey(),
		MintA:     solana.NewWallet().PublicKey(),
		MintB:     solana.NewWallet().PublicKey(),
		VaultA:    solana.NewWallet().PublicKey(),
		VaultB:    solana.NewWallet().PublicKey(),
		LowerTick: -10,
		UpperTick: 10,
		Liquidity: uint128.From64(42),
		State:     types.PositionIdle,
	}
	require.NoError(t, store.Create(context.Background(), rec))

	now := time.Now().UTC()
	for i, op := range []types.OperationType{types.OpRemoveLiquidity, types.OpSwap, types.OpAddLiquidity} {
		require.NoError(t, store.SaveReceipt(context.Background(), types.OperationReceipt{
			ManagerID: rec.ID.String(),
			Operation: op,
			Success:   op != types.OpAddLiquidity,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}))
	}
	return store, rec
}

func serve(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestNewWebServerRequiresStore(t *testing.T) {
	_, err := NewWebServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	store, _ := seed(t)
	ws, err := NewWebServer(Config{Store: &flakyStore{MemoryStore: store}})
	require.NoError(t, err)

	rec, body := serve(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	ws, err = NewWebServer(Config{Store: &flakyStore{MemoryStore: store, pingErr: errors.New("connection refused")}})
	require.NoError(t, err)
	rec, body = serve(t, ws, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestGetManager(t *testing.T) {
	store, mgr := seed(t)
	ws, err := NewWebServer(Config{
		Store:    store,
		Balances: balances{mgr.VaultA: 700},
	})
	require.NoError(t, err)

	rec, body := serve(t, ws, "/api/managers/"+mgr.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	view := body["manager"].(map[string]interface{})
	assert.Equal(t, "42", view["liquidity"])
	assert.Equal(t, "IDLE", view["state"])
	assert.Equal(t, mgr.Pool.String(), view["pool"])

	// Vault B has no account yet, so only vault A is reported.
	vaults := body["balances"].([]interface{})
	require.Len(t, vaults, 1)
	assert.Equal(t, 700.0, vaults[0].(map[string]interface{})["amount"])
	assert.Equal(t, mgr.VaultA.String(), vaults[0].(map[string]interface{})["vault"])
}

func TestGetManagerReadsBalancesOnce(t *testing.T) {
	store, mgr := seed(t)
	reader := &brokenBalances{}
	ws, err := NewWebServer(Config{Store: store, Balances: reader})
	require.NoError(t, err)

	rec, body := serve(t, ws, "/api/managers/"+mgr.ID.String())
	require.Equal(t, http.StatusOK, rec.Code, "a balance read failure does not fail the view")
	assert.Empty(t, body["balances"])
	assert.Equal(t, 1, reader.calls)
}

func TestGetManagerErrors(t *testing.T) {
	store, _ := seed(t)
	ws, err := NewWebServer(Config{Store: store})
	require.NoError(t, err)

	rec, _ := serve(t, ws, "/api/managers/not-a-key")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := serve(t, ws, "/api/managers/"+solana.NewWallet().PublicKey().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, true, body["error"])
}

func TestListManagersAndSummary(t *testing.T) {
	store, _ := seed(t)
	ws, err := NewWebServer(Config{Store: store})
	require.NoError(t, err)

	_, body := serve(t, ws, "/api/managers")
	assert.Equal(t, 1.0, body["count"])

	_, body = serve(t, ws, "/api/summary")
	assert.Equal(t, 1.0, body["managers"])
	assert.Equal(t, 1.0, body["idle"])
	assert.Equal(t, 3.0, body["operations"])
	assert.Equal(t, 1.0, body["failed_operations"])
}

func TestGetReceipts(t *testing.T) {
	store, mgr := seed(t)
	ws, err := NewWebServer(Config{Store: store})
	require.NoError(t, err)
	base := "/api/managers/" + mgr.ID.String() + "/receipts"

	_, body := serve(t, ws, base)
	assert.Equal(t, 3.0, body["count"])
	newest := body["receipts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "ADD_LIQUIDITY", newest["operation"])

	_, body = serve(t, ws, base+"?limit=1&operation=swap")
	require.Equal(t, 1.0, body["count"])
	assert.Equal(t, "SWAP", body["receipts"].([]interface{})[0].(map[string]interface{})["operation"])

	rec, _ := serve(t, ws, base+"?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	store, _ := seed(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scraped":true}`))
	})
	ws, err := NewWebServer(Config{Store: store, Metrics: metrics})
	require.NoError(t, err)

	rec, body := serve(t, ws, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["scraped"])
}

func TestRefreshHealthSetsGRPCStatus(t *testing.T) {
	store, _ := seed(t)
	flaky := &flakyStore{MemoryStore: store}
	ws, err := NewWebServer(Config{Store: flaky})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, ws.RefreshHealth(ctx))
	resp, err := ws.HealthServer().Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	flaky.pingErr = errors.New("down")
	ws.RefreshHealth(ctx)
	resp, err = ws.HealthServer().Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
