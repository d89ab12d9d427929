package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabi-wallet/sabi_backend/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RemoteClient, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := NewRemoteClient(RemoteConfig{BaseURL: ts.URL, Env: "staging"}, logging.Discard())
	require.NoError(t, err)
	return client, ts
}

func TestNewRemoteClient_RequiresURL(t *testing.T) {
	_, err := NewRemoteClient(RemoteConfig{}, nil)
	assert.Error(t, err)

	_, err = NewRemoteClient(RemoteConfig{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestProvisionNode_Success(t *testing.T) {
	var sentWalletID string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/create-node", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req createNodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		id, err := uuid.Parse(req.WalletID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
		sentWalletID = req.WalletID

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"node_id":"02abc","invite_code":"sabi-invite","status":"created"}`))
	})

	info, err := client.ProvisionNode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "02abc", info.NodeReference)
	assert.Equal(t, "sabi-invite", info.InviteCode)
	assert.Equal(t, sentWalletID, info.WalletID, "channel calls must reuse the id the node is keyed by")
}

func TestProvisionNode_ServiceError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Failed to create Breez node"}`, http.StatusInternalServerError)
	})

	_, err := client.ProvisionNode(context.Background())
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusInternalServerError, svcErr.StatusCode)
	assert.Equal(t, opProvision, svcErr.Op)
	assert.Contains(t, svcErr.Body, "Failed to create Breez node")
}

func TestProvisionNode_EmptyNodeID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"invite_code":"x"}`))
	})

	_, err := client.ProvisionNode(context.Background())
	assert.Error(t, err)
}

func TestProvisionNode_Unreachable(t *testing.T) {
	client, ts := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ts.Close()

	_, err := client.ProvisionNode(context.Background())
	assert.Error(t, err)
}

func TestOpenChannel_ValidatesAmountBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	for _, amount := range []int64{0, 99_999, 300_001} {
		err := client.OpenChannel(context.Background(), "wallet-1", amount)
		assert.ErrorIs(t, err, ErrInvalidChannelAmount, "amount %d", amount)
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestOpenChannel_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/open-channel", r.URL.Path)
		var req openChannelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wallet-1", req.WalletID)
		assert.Equal(t, int64(150_000), req.AmountSats)
		_, _ = w.Write([]byte(`{"success":true,"bitcoin_address":"bc1q","swap_fee_sat":120}`))
	})

	require.NoError(t, client.OpenChannel(context.Background(), "wallet-1", 150_000))
}

func TestOpenChannel_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Wallet not found. Create node first."}`, http.StatusNotFound)
	})

	err := client.OpenChannel(context.Background(), "wallet-1", 200_000)
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

func TestGetStatus_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallet-status/02abc", r.URL.Path)
		_, _ = w.Write([]byte(`{"balance_sats":1500,"channel_count":1,"channel_capacity_sats":200000,"is_connected":true}`))
	})

	status := client.GetStatus(context.Background(), "02abc")
	assert.Equal(t, Status{BalanceSats: 1500, ChannelCount: 1, ChannelCapacitySats: 200_000, IsConnected: true}, status)
}

func TestGetStatus_DegradesToDefault(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	assert.Equal(t, Status{}, client.GetStatus(context.Background(), "02abc"))
}

func TestGetStatus_MalformedBodyDegrades(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	assert.Equal(t, Status{}, client.GetStatus(context.Background(), "02abc"))
}

func TestGetStatus_BreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 8; i++ {
		assert.Equal(t, Status{}, client.GetStatus(context.Background(), "02abc"))
	}
	assert.Equal(t, int32(5), calls.Load(), "breaker should open after five failures")
	assert.Equal(t, breakerOpen, client.breaker.current())
}

func TestGetStatus_CallerCancellationKeepsBreakerClosed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance_sats":42,"is_connected":true}`))
	})

	for i := 0; i < 8; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, Status{}, client.GetStatus(ctx, "02abc"))
	}
	assert.Equal(t, breakerClosed, client.breaker.current())

	status := client.GetStatus(context.Background(), "02abc")
	assert.Equal(t, Status{BalanceSats: 42, IsConnected: true}, status)
}

func TestGetStatus_RespectsTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the status timeout")
	}
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	assert.Equal(t, Status{}, client.GetStatus(context.Background(), "02abc"))
	assert.Less(t, time.Since(start), StatusTimeout+2*time.Second)
}

func TestHealthCheck(t *testing.T) {
	var unhealthy atomic.Bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","service":"sabi-breez-service","active_wallets":3}`))
	})

	assert.NoError(t, client.HealthCheck(context.Background()))
	unhealthy.Store(true)
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestLSPStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/lsp-status", r.URL.Path)
		_, _ = w.Write([]byte(`{"lsp_id":"breez-lsp","is_online":true}`))
	})

	status, err := client.LSPStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LSPStatus{ID: "breez-lsp", Online: true}, status)
}

func TestRemoteClient_RateLimiterHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	client, err := NewRemoteClient(RemoteConfig{BaseURL: ts.URL, RequestsPerSecond: 0.001, Burst: 1}, nil)
	require.NoError(t, err)

	require.NoError(t, client.HealthCheck(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.OpenChannel(ctx, "wallet-1", 200_000)
	assert.Error(t, err)
}
