package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/localmart/authgate"
)

func TestLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("path = %q, want /api/auth/login", r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["identifier"] != "amara" || body["password"] != "pw" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"token": "tok-1",
				"user":  map[string]string{"id": "u-1", "username": "amara", "role": "Buyer"},
			},
		})
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL).Login(context.Background(), "amara", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !reply.Success || reply.Token != "tok-1" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.User == nil || reply.User.Role != authgate.RoleBuyer {
		t.Errorf("user = %+v, want Buyer", reply.User)
	}
}

func TestLoginTwoFactorChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "verification code sent",
			"data":    map[string]any{"twoFactorRequired": true},
		})
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL).Login(context.Background(), "amara", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !reply.TwoFactorRequired {
		t.Errorf("TwoFactorRequired = false, want true")
	}
	if reply.Success {
		t.Error("Success = true on a challenge reply")
	}
}

func TestLoginRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "invalid credentials"})
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL).Login(context.Background(), "amara", "wrong")
	if err != nil {
		t.Fatalf("a 4xx rejection is not a transport error, got %v", err)
	}
	if reply.Success {
		t.Error("Success = true, want false")
	}
	if reply.Message != "invalid credentials" {
		t.Errorf("Message = %q", reply.Message)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Login(context.Background(), "amara", "pw")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLogoutAllDevices(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Logout(context.Background(), "tok-1", true); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if gotQuery != "allDevices=true" {
		t.Errorf("query = %q, want allDevices=true", gotQuery)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestFetchStoreStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sellerId"); got != "u-7" {
			t.Errorf("sellerId = %q, want u-7", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"storeId": "s-1", "active": true},
		})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).FetchStoreStatus(context.Background(), "u-7")
	if err != nil {
		t.Fatalf("FetchStoreStatus: %v", err)
	}
	if !status.Active || status.StoreID != "s-1" {
		t.Errorf("status = %+v", status)
	}
}

func TestClientImplementsAuthClient(t *testing.T) {
	var _ authgate.AuthClient = NewClient("http://localhost")
}
