package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/seludoto/dolesecommerce/internal/config"
)

func newTestDarajaClient(baseURL string) *DarajaClient {
	return NewDarajaClient(&config.Config{
		MpesaBaseURL:        baseURL,
		MpesaConsumerKey:    "consumer-key",
		MpesaConsumerSecret: "consumer-secret",
		MpesaShortcode:      "174379",
		MpesaPasskey:        "test-passkey",
	}, nil)
}

func serveToken(w http.ResponseWriter, token string) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"access_token": token,
		"expires_in":   "3599",
	})
}

func TestDarajaTimestampAndPassword(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 4, 5, 0, time.UTC)

	timestamp := darajaTimestamp(at)
	require.Equal(t, "20240315090405", timestamp)

	password := darajaPassword("174379", "passkey", timestamp)
	decoded, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	require.Equal(t, "174379passkey20240315090405", string(decoded))
}

func TestDarajaAuthenticateCachesToken(t *testing.T) {
	var authCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v1/generate", r.URL.Path)
		require.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "consumer-key", user)
		require.Equal(t, "consumer-secret", pass)

		authCalls++
		serveToken(w, "token-1")
	}))
	defer srv.Close()

	client := newTestDarajaClient(srv.URL)
	ctx := context.Background()

	token, err := client.Authenticate(ctx)
	require.NoError(t, err)
	require.Equal(t, "token-1", token)

	token, err = client.Authenticate(ctx)
	require.NoError(t, err)
	require.Equal(t, "token-1", token)

	require.Equal(t, 1, authCalls, "second call must reuse the cached token")
}

func TestDarajaStkPushRequestShape(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			serveToken(w, "token-1")
		case "/mpesa/stkpush/v1/processrequest":
			require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			_ = json.NewEncoder(w).Encode(StkPushResponse{
				CheckoutRequestID: "ws_CO_1",
				ResponseCode:      "0",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestDarajaClient(srv.URL)

	resp, err := client.StkPush(context.Background(), "254712345678", decimal.RequireFromString("150.00"), "ORDER-1", "Order payment", "https://example.com/cb")
	require.NoError(t, err)
	require.Equal(t, "ws_CO_1", resp.CheckoutRequestID)

	require.Equal(t, "174379", payload["BusinessShortCode"])
	require.Equal(t, "CustomerPayBillOnline", payload["TransactionType"])
	require.Equal(t, "254712345678", payload["PartyA"])
	require.Equal(t, "254712345678", payload["PhoneNumber"])
	require.Equal(t, "174379", payload["PartyB"])
	require.Equal(t, float64(150), payload["Amount"])
	require.Equal(t, "ORDER-1", payload["AccountReference"])
	require.Equal(t, "https://example.com/cb", payload["CallBackURL"])

	timestamp, ok := payload["Timestamp"].(string)
	require.True(t, ok)
	require.Equal(t, darajaPassword("174379", "test-passkey", timestamp), payload["Password"])
}

func TestDarajaPostRetriesOnceAfter401(t *testing.T) {
	var stkCalls, authCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			authCalls++
			serveToken(w, "token-1")
		case "/mpesa/stkpushquery/v1/query":
			stkCalls++
			if stkCalls == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(StkQueryResponse{ResultCode: "0", ResultDesc: "processed"})
		}
	}))
	defer srv.Close()

	client := newTestDarajaClient(srv.URL)

	resp, err := client.QueryStkStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, "0", resp.ResultCode)
	require.Equal(t, 2, stkCalls)
	require.Equal(t, 2, authCalls, "the 401 must invalidate the token and re-authenticate")
}

func TestDarajaPostServerErrorSurfacesAsProviderRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			serveToken(w, "token-1")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestDarajaClient(srv.URL)

	_, err := client.StkPush(context.Background(), "254712345678", decimal.RequireFromString("10"), "ref", "desc", "https://example.com/cb")
	require.Error(t, err)

	var reqErr *ProviderRequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)
}

func TestDarajaAuthenticateGivesUpAfterRetries(t *testing.T) {
	var authCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCalls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestDarajaClient(srv.URL)

	_, err := client.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, authMaxRetries, authCalls)
}
