package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/fxsociety/go-session-client/internal/errors"
	"github.com/fxsociety/go-session-client/session"
	"github.com/fxsociety/go-session-client/session/storefakes"
	"github.com/fxsociety/go-session-client/transport"
	"github.com/fxsociety/go-session-client/users"
)

const testToken = "test-token"

func TestClient_FetchCurrentUser(t *testing.T) {
	t.Run("resolves the profile", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/auth/me", r.URL.Path)
			require.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(users.User{
				ID:        7,
				Email:     "john.doe@example.com",
				FullName:  "John Doe",
				IsActive:  true,
				CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			})
		}))
		t.Cleanup(server.Close)

		client := transport.NewClient(server.URL)
		user, err := client.FetchCurrentUser(context.Background(), testToken)
		require.NoError(t, err)
		require.Equal(t, int64(7), user.ID)
		require.Equal(t, "john.doe@example.com", user.Email)
		require.True(t, user.IsActive)
	})

	t.Run("unauthorized errors without emitting the auth-error signal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
		}))
		t.Cleanup(server.Close)

		client := transport.NewClient(server.URL)
		signals := 0
		unsubscribe := client.OnAuthError(func() { signals++ })
		t.Cleanup(unsubscribe)

		user, err := client.FetchCurrentUser(context.Background(), testToken)
		require.Error(t, err)
		require.Nil(t, user)

		// The manager decides what a rejected profile fetch means (a fresh
		// login survives one); broadcasting here would force a logout.
		require.Zero(t, signals)
		require.True(t, errors.Is(err, apperrors.ErrUnauthorized))
		require.Contains(t, err.Error(), "Could not validate credentials")
	})

	t.Run("server error reports status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		client := transport.NewClient(server.URL)

		_, err := client.FetchCurrentUser(context.Background(), testToken)
		require.Error(t, err)
		require.False(t, errors.Is(err, apperrors.ErrUnauthorized))
	})
}

func TestClient_OnAuthError(t *testing.T) {
	t.Run("supports multiple listeners and idempotent unsubscribe", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(server.Close)

		store := storefakes.NewFakeStore()
		require.NoError(t, store.Set(session.TokenKey, testToken))
		client := transport.NewClient(server.URL, transport.WithTokenReader(store))

		first, second := 0, 0
		unsubscribeFirst := client.OnAuthError(func() { first++ })
		t.Cleanup(client.OnAuthError(func() { second++ }))

		_ = client.GetJSON(context.Background(), "/api/orders", nil)
		require.Equal(t, 1, first)
		require.Equal(t, 1, second)

		unsubscribeFirst()
		unsubscribeFirst() // second call is a no-op

		_ = client.GetJSON(context.Background(), "/api/orders", nil)
		require.Equal(t, 1, first)
		require.Equal(t, 2, second)
	})
}

func TestClient_ExchangeCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostForm.Get("grant_type"))
		require.Equal(t, "john.doe@example.com", r.PostForm.Get("username"))
		require.Equal(t, "password123", r.PostForm.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued-token","token_type":"bearer"}`))
	}))
	t.Cleanup(server.Close)

	client := transport.NewClient(server.URL)
	token, err := client.ExchangeCredentials(context.Background(), "john.doe@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, "issued-token", token)
}

func TestClient_GetJSON(t *testing.T) {
	t.Run("attaches the persisted bearer token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"total":3}`))
		}))
		t.Cleanup(server.Close)

		store := storefakes.NewFakeStore()
		require.NoError(t, store.Set(session.TokenKey, testToken))

		client := transport.NewClient(server.URL, transport.WithTokenReader(store))

		var out struct {
			Total int `json:"total"`
		}
		require.NoError(t, client.GetJSON(context.Background(), "/api/orders", &out))
		require.Equal(t, 3, out.Total)
	})

	t.Run("missing token emits the auth-error signal without a request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected")
		}))
		t.Cleanup(server.Close)

		client := transport.NewClient(server.URL, transport.WithTokenReader(storefakes.NewFakeStore()))
		signals := 0
		t.Cleanup(client.OnAuthError(func() { signals++ }))

		err := client.GetJSON(context.Background(), "/api/orders", nil)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrUnauthorized))
		require.Equal(t, 1, signals)
	})

	t.Run("unauthorized response emits the auth-error signal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(server.Close)

		store := storefakes.NewFakeStore()
		require.NoError(t, store.Set(session.TokenKey, testToken))

		client := transport.NewClient(server.URL, transport.WithTokenReader(store))
		signals := 0
		t.Cleanup(client.OnAuthError(func() { signals++ }))

		err := client.GetJSON(context.Background(), "/api/orders", nil)
		require.Error(t, err)
		require.Equal(t, 1, signals)
	})
}
