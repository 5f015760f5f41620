package xoauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestClient_AuthorizeURL(t *testing.T) {
	client := NewClient(Config{ClientID: "client-123"})

	raw := client.AuthorizeURL("https://app.example/callback", "state-S", "challenge-C")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthorizeURL() produced unparseable URL: %v", err)
	}

	q := parsed.Query()
	tests := []struct {
		param string
		want  string
	}{
		{param: "response_type", want: "code"},
		{param: "client_id", want: "client-123"},
		{param: "redirect_uri", want: "https://app.example/callback"},
		{param: "state", want: "state-S"},
		{param: "code_challenge", want: "challenge-C"},
		{param: "code_challenge_method", want: "S256"},
		{param: "scope", want: strings.Join(Scopes, " ")},
	}
	for _, tt := range tests {
		if got := q.Get(tt.param); got != tt.want {
			t.Errorf("query param %s = %q, want %q", tt.param, got, tt.want)
		}
	}
}

func TestClient_Exchange_Success(t *testing.T) {
	var gotForm url.Values
	var gotBasicUser, gotBasicPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotForm = r.PostForm
		gotBasicUser, gotBasicPass, _ = r.BasicAuth()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "AT1",
			"refresh_token": "RT1",
			"expires_in":    3600,
			"scope":         "tweet.read users.read offline.access",
		})
	}))
	defer srv.Close()

	client := NewClient(Config{
		ClientID:     "client-123",
		ClientSecret: "hush",
		TokenURL:     srv.URL,
	})

	before := time.Now()
	result, err := client.Exchange(context.Background(), "abc123", "verifier-V", "https://app.example/callback")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q, want authorization_code", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "abc123" {
		t.Errorf("code = %q, want abc123", gotForm.Get("code"))
	}
	if gotForm.Get("code_verifier") != "verifier-V" {
		t.Errorf("code_verifier = %q, want verifier-V", gotForm.Get("code_verifier"))
	}
	if gotForm.Get("redirect_uri") != "https://app.example/callback" {
		t.Errorf("redirect_uri = %q", gotForm.Get("redirect_uri"))
	}
	if gotBasicUser != "client-123" || gotBasicPass != "hush" {
		t.Errorf("basic auth = %q:%q, want client-123:hush", gotBasicUser, gotBasicPass)
	}

	if result.AccessToken != "AT1" || result.RefreshToken != "RT1" {
		t.Errorf("tokens = %q/%q, want AT1/RT1", result.AccessToken, result.RefreshToken)
	}
	if result.Scope != "tweet.read users.read offline.access" {
		t.Errorf("scope = %q", result.Scope)
	}
	wantExpiry := before.Add(time.Hour)
	if result.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || result.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want ~%v", result.ExpiresAt, wantExpiry)
	}
}

func TestClient_Exchange_PublicClientHasNoBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); ok {
			t.Error("public client sent HTTP Basic authentication")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "AT1"})
	}))
	defer srv.Close()

	client := NewClient(Config{ClientID: "client-123", TokenURL: srv.URL})
	result, err := client.Exchange(context.Background(), "abc", "v", "https://app.example/cb")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if !result.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero when provider omits expires_in", result.ExpiresAt)
	}
}

func TestClient_Exchange_DeniedWithoutAccessToken(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{
			name:   "provider error payload",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_request","error_description":"Value passed for the authorization code was invalid."}`,
		},
		{
			name:   "200 response lacking access_token",
			status: http.StatusOK,
			body:   `{"token_type":"bearer"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(Config{ClientID: "client-123", TokenURL: srv.URL})
			_, err := client.Exchange(context.Background(), "abc", "v", "https://app.example/cb")

			var exchangeErr *ExchangeError
			if !errors.As(err, &exchangeErr) {
				t.Fatalf("Exchange() error = %v, want *ExchangeError", err)
			}
			if exchangeErr.Kind != KindDenied {
				t.Errorf("Kind = %v, want %v", exchangeErr.Kind, KindDenied)
			}
			if exchangeErr.Payload != tt.body {
				t.Errorf("Payload = %q, want provider body preserved", exchangeErr.Payload)
			}
		})
	}
}

func TestClient_Exchange_Transport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(Config{ClientID: "client-123", TokenURL: srv.URL})
	_, err := client.Exchange(context.Background(), "abc", "v", "https://app.example/cb")

	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("Exchange() error = %v, want *ExchangeError", err)
	}
	if exchangeErr.Kind != KindTransport {
		t.Errorf("Kind = %v, want %v", exchangeErr.Kind, KindTransport)
	}
}

func TestClient_Refresh(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "AT2",
			"expires_in":   7200,
		})
	}))
	defer srv.Close()

	client := NewClient(Config{ClientID: "client-123", TokenURL: srv.URL})
	result, err := client.Refresh(context.Background(), "RT1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if gotForm.Get("grant_type") != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", gotForm.Get("grant_type"))
	}
	if gotForm.Get("refresh_token") != "RT1" {
		t.Errorf("refresh_token = %q, want RT1", gotForm.Get("refresh_token"))
	}
	if result.AccessToken != "AT2" {
		t.Errorf("AccessToken = %q, want AT2", result.AccessToken)
	}
	// Refresh responses may omit refresh_token; the result reports that
	// honestly and the store keeps the previous one.
	if result.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty", result.RefreshToken)
	}
}

func TestClient_Refresh_NoToken(t *testing.T) {
	client := NewClient(Config{ClientID: "client-123"})
	_, err := client.Refresh(context.Background(), "")

	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("Refresh() error = %v, want *RefreshError", err)
	}
	if refreshErr.Kind != KindNoRefreshToken {
		t.Errorf("Kind = %v, want %v", refreshErr.Kind, KindNoRefreshToken)
	}
}

func TestClient_Refresh_Denied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{ClientID: "client-123", TokenURL: srv.URL})
	_, err := client.Refresh(context.Background(), "RT-revoked")

	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("Refresh() error = %v, want *RefreshError", err)
	}
	if refreshErr.Kind != KindDenied {
		t.Errorf("Kind = %v, want %v", refreshErr.Kind, KindDenied)
	}
	if !strings.Contains(refreshErr.Error(), "invalid_grant") {
		t.Errorf("error message %q should carry the provider diagnostic", refreshErr.Error())
	}
}

func TestClient_FetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer AT1" {
			t.Errorf("Authorization = %q, want Bearer AT1", got)
		}
		if got := r.URL.Query().Get("user.fields"); !strings.Contains(got, "profile_image_url") {
			t.Errorf("user.fields = %q, want profile_image_url requested", got)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"42","username":"jdoe","name":"J. Doe","profile_image_url":"https://img.example/a.png"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{ClientID: "client-123", APIBaseURL: srv.URL})
	profile, err := client.FetchProfile(context.Background(), "AT1")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}

	if profile.ID != "42" || profile.Username != "jdoe" || profile.Name != "J. Doe" {
		t.Errorf("Profile = %+v", profile)
	}
}

func TestClient_FetchProfile_MissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{ClientID: "client-123", APIBaseURL: srv.URL})
	if _, err := client.FetchProfile(context.Background(), "stale"); err == nil {
		t.Fatal("FetchProfile() succeeded, want error for missing data object")
	}
}
