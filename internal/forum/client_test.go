package forum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", ExpiresIn: 3600})
	})
	mux.HandleFunc("/r/wallstreetbets/hot.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(listingResponse{
			Data: struct {
				Children []struct {
					Data postData `json:"data"`
				} `json:"children"`
			}{
				Children: []struct {
					Data postData `json:"data"`
				}{
					{Data: postData{ID: "abc123", Title: "To the moon", Score: 500, NumComments: 120, CreatedUTC: 1717430400}},
				},
			},
		})
	})
	mux.HandleFunc("/r/stocks/hot.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(listingResponse{})
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(Config{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/token",
		ClientID:       "id",
		ClientSecret:   "secret",
		RequestsPerMin: 6000,
		RequestTimeout: 5 * time.Second,
	})
}

func TestFetchHotReturnsPostsAcrossChannels(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv)

	posts, err := c.FetchHot(context.Background(), []string{"wallstreetbets", "stocks"}, 10)
	if err != nil {
		t.Fatalf("FetchHot: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].ExternalID != "abc123" || posts[0].Channel != "wallstreetbets" {
		t.Fatalf("unexpected post: %+v", posts[0])
	}
	if posts[0].Score != 500 || posts[0].NumComments != 120 {
		t.Fatalf("unexpected engagement counts: %+v", posts[0])
	}
}

func TestFetchHotDefaultsChannelsWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
			return
		}
		_ = json.NewEncoder(w).Encode(listingResponse{})
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.FetchHot(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("FetchHot with default channels: %v", err)
	}
}

func TestFetchTopUsesTimeFilter(t *testing.T) {
	var sawTimeFilter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
		case "/r/stocks/top.json":
			sawTimeFilter = r.URL.Query().Get("t")
			_ = json.NewEncoder(w).Encode(listingResponse{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.FetchTop(context.Background(), []string{"stocks"}, TimeWeek, 5)
	if err != nil {
		t.Fatalf("FetchTop: %v", err)
	}
	if sawTimeFilter != "week" {
		t.Fatalf("expected time filter 'week', got %q", sawTimeFilter)
	}
}

func TestFetchNewAuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.FetchNew(context.Background(), []string{"stocks"}, 5)
	if err == nil {
		t.Fatalf("expected error on auth failure")
	}
}
