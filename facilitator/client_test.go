package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *Request {
	return &Request{
		X402Version: 1,
		PaymentPayload: PaymentPayload{
			X402Version: 1,
			Scheme:      "native",
			Network:     "base-sepolia",
			Payload:     map[string]string{"txHash": "0xabc"},
		},
		PaymentRequirements: map[string]string{"payTo": "0x1"},
	}
}

func TestClient_VerifySendsEnvelope(t *testing.T) {
	var got Request
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"isValid":true,"payer":"0xpayer"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithHeaderProvider(func(context.Context) (CallHeaders, error) {
		return CallHeaders{
			Verify: map[string]string{"X-Api-Key": "verify-key"},
			Settle: map[string]string{"X-Api-Key": "settle-key"},
		}, nil
	}))

	resp, err := c.Verify(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, resp.Valid())
	assert.Equal(t, "0xpayer", resp.Payer)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "verify-key", gotHeaders.Get("X-Api-Key"))
	assert.Equal(t, "native", got.PaymentPayload.Scheme)
	assert.Equal(t, "base-sepolia", got.PaymentPayload.Network)
}

func TestClient_SettleUsesSettleHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/settle", r.URL.Path)
		assert.Equal(t, "settle-key", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`{"success":true,"transaction":"0xtx","network":"base"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHeaderProvider(func(context.Context) (CallHeaders, error) {
		return CallHeaders{Settle: map[string]string{"X-Api-Key": "settle-key"}}, nil
	}))

	resp, err := c.Settle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.Equal(t, "0xtx", resp.Transaction)
	assert.Equal(t, "base", resp.Network)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "non-2xx", status: http.StatusBadGateway, body: "upstream down", wantErr: "returned status 502: upstream down"},
		{name: "malformed body", status: http.StatusOK, body: "not json", wantErr: "failed to decode verify response"},
		{name: "missing isValid", status: http.StatusOK, body: `{"invalidReason":"x"}`, wantErr: "missing isValid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Verify(context.Background(), testRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_SettleMissingSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transaction":"0xtx"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Settle(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing success")
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, WithTimeout(time.Second)).Verify(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call facilitator verify endpoint")
}

func TestClient_HeaderProviderError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithHeaderProvider(func(context.Context) (CallHeaders, error) {
		return CallHeaders{}, assert.AnError
	}))

	_, err := c.Settle(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestClient_Supported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/supported", r.URL.Path)
		w.Write([]byte(`{"kinds":[{"x402Version":1,"scheme":"exact","network":"base-sepolia"}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Supported(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Kinds, 1)
	assert.Equal(t, "exact", resp.Kinds[0].Scheme)
}

func TestClient_FollowsRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"isValid":false,"invalidReason":"insufficient_funds"}`))
	}))
	defer target.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+r.URL.Path, http.StatusTemporaryRedirect)
	}))
	defer redirect.Close()

	resp, err := NewClient(redirect.URL).Verify(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, resp.Valid())
	assert.Equal(t, "insufficient_funds", resp.InvalidReason)
}
