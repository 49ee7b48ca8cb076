package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/config"
	"github.com/NicholasBarkolias/job-booking-expo/internal/domain"
	"github.com/NicholasBarkolias/job-booking-expo/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCredentials_StaticFallback(t *testing.T) {
	connector := NewHTTPConnector(config.RemoteConfig{
		Endpoint: "https://backend.example.com",
		Token:    "static-token",
	})

	creds, err := connector.FetchCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://backend.example.com", creds.Endpoint)
	assert.Equal(t, "static-token", creds.Token)
}

func TestFetchCredentials_FromEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Credentials{Endpoint: "https://issued.example.com", Token: "issued"})
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{CredentialsURL: server.URL})
	creds, err := connector.FetchCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "issued", creds.Token)
}

func TestFetchCredentials_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{CredentialsURL: server.URL})
	_, err := connector.FetchCredentials(context.Background())
	assert.True(t, IsTransport(err))
}

func TestUpload_RoundTrip(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req uploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Operations, 1)

		json.NewEncoder(w).Encode(uploadResponse{Results: []domain.OpResult{
			{OpID: req.Operations[0].ID, Accepted: true},
		}})
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{Endpoint: server.URL, Token: "tkn"})
	results, err := connector.Upload(context.Background(), []models.PendingOperation{
		{ID: 7, EntityKind: models.EntityBooking, EntityID: "b-1", OpType: models.OpCreate, Payload: `{}`},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(7), results[0].OpID)
	assert.True(t, results[0].Accepted)
	assert.Equal(t, "Bearer tkn", gotAuth)
}

func TestUpload_UnauthorizedInvalidatesCredentials(t *testing.T) {
	fetches := 0
	var backend *httptest.Server
	credServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		json.NewEncoder(w).Encode(domain.Credentials{Endpoint: backend.URL, Token: "rotating"})
	}))
	defer credServer.Close()

	backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	connector := NewHTTPConnector(config.RemoteConfig{CredentialsURL: credServer.URL})

	_, err := connector.Upload(context.Background(), nil)
	require.True(t, IsTransport(err))
	_, err = connector.Upload(context.Background(), nil)
	require.True(t, IsTransport(err))

	// The 401 dropped the cached pair, so the second call re-fetched.
	assert.Equal(t, 2, fetches)
}

func TestUpload_ServerErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{Endpoint: server.URL, Token: "tkn"})
	_, err := connector.Upload(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Contains(t, err.Error(), "503")
}

func TestUpload_TimeoutIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{Endpoint: server.URL, Token: "tkn"})
	connector.client.Timeout = 20 * time.Millisecond

	_, err := connector.Upload(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestPollChanges_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/changes", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("after"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(domain.ChangePage{
			Changes: []models.RemoteChange{
				{Entity: models.EntityBooking, EntityID: "b-1", Op: models.OpUpdate, Seq: 43, Payload: []byte(`{}`)},
			},
			NextSeq: 43,
		})
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{Endpoint: server.URL, Token: "tkn", PollRPS: 1000})
	page, err := connector.PollChanges(context.Background(), 42, 100)
	require.NoError(t, err)
	require.Len(t, page.Changes, 1)
	assert.Equal(t, int64(43), page.NextSeq)
	assert.Equal(t, "b-1", page.Changes[0].EntityID)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	assert.True(t, tokenExpiry(token).Equal(exp))
	assert.True(t, tokenExpiry("opaque-session-token").IsZero())
	assert.True(t, tokenExpiry("").IsZero())
}

func TestCredentials_RefreshBeforeExpiry(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		// Expires inside the refresh skew, so every call re-fetches.
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(5 * time.Second).Unix(),
		}).SignedString([]byte("test-key"))
		require.NoError(t, err)
		json.NewEncoder(w).Encode(domain.Credentials{Endpoint: "https://backend.example.com", Token: token})
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{CredentialsURL: server.URL})
	ctx := context.Background()

	_, err := connector.credentials(ctx)
	require.NoError(t, err)
	_, err = connector.credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestCredentials_CachedWhileValid(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("test-key"))
		require.NoError(t, err)
		json.NewEncoder(w).Encode(domain.Credentials{Endpoint: "https://backend.example.com", Token: token})
	}))
	defer server.Close()

	connector := NewHTTPConnector(config.RemoteConfig{CredentialsURL: server.URL})
	ctx := context.Background()

	_, err := connector.credentials(ctx)
	require.NoError(t, err)
	_, err = connector.credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)
}
