package authhttp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
	"github.com/guarzo/authpipe/modules/authhttp"
	"github.com/guarzo/authpipe/modules/refresh"
	"github.com/guarzo/authpipe/modules/tokenstore"
)

// backend is a fake API with a rotating refresh endpoint. Only the most
// recently minted access credential is accepted.
type backend struct {
	mu         sync.Mutex
	valid      string
	minted     int
	hits       map[string]int
	auths      []string
	rejected   int
	alwaysDeny bool

	refreshCalls  atomic.Int32
	refreshStatus int
	// refreshAfter holds the refresh response until this many 401s were served.
	refreshAfter int
	// gate, when set, holds the refresh response until it returns true.
	gate func() bool
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{minted: 1, hits: map[string]int{}}

	r := mux.NewRouter()
	r.HandleFunc("/api/token/refresh/", b.handleRefresh).Methods(http.MethodPost)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(b.requireAuth)
	api.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":["a","b"]}`)
	}).Methods(http.MethodGet)
	api.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.Copy(w, r.Body)
	}).Methods(http.MethodPost)
	api.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail":"boom"}`)
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return b, ts
}

func (b *backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.hits[r.Header.Get(authhttp.RequestIDHeader)]++
		b.auths = append(b.auths, auth)
		ok := !b.alwaysDeny && b.valid != "" && auth == "Bearer "+b.valid
		if !ok {
			b.rejected++
		}
		b.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Given token not valid for any token type","code":"token_not_valid"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	b.mu.Lock()
	after, status, gate := b.refreshAfter, b.refreshStatus, b.gate
	b.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for after > 0 && b.rejectedCount() < after && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for gate != nil && !gate() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"detail":"Token is invalid or expired","code":"token_not_valid"}`)
		return
	}
	var body model.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.minted++
	b.valid = fmt.Sprintf("access-%d", b.minted)
	resp := model.RefreshResponse{Access: b.valid, Refresh: fmt.Sprintf("refresh-%d", b.minted)}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *backend) rejectedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// set changes backend behaviour under its lock.
func (b *backend) set(fn func(b *backend)) {
	b.mu.Lock()
	fn(b)
	b.mu.Unlock()
}

func (b *backend) invalidate() {
	b.mu.Lock()
	b.valid = ""
	b.mu.Unlock()
}

func (b *backend) hitsFor(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[id]
}

// countingStore counts Clear calls on top of a real store.
type countingStore struct {
	*tokenstore.Store
	clears atomic.Int32
}

func (s *countingStore) Clear(ctx context.Context) error {
	s.clears.Add(1)
	return s.Store.Clear(ctx)
}

func newStore(t *testing.T, seed *model.Credentials) *countingStore {
	t.Helper()
	s := &countingStore{Store: tokenstore.New(common.NewMemoryStorage())}
	if seed != nil {
		if err := s.Store.Save(context.Background(), seed); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

type harness struct {
	backend *backend
	server  *httptest.Server
	store   *countingStore
	client  *authhttp.Client
	logouts atomic.Int32
}

func newHarness(t *testing.T, seed *model.Credentials, tweak func(*authhttp.Options)) *harness {
	t.Helper()
	b, ts := newBackend(t)
	h := &harness{backend: b, server: ts, store: newStore(t, seed)}

	opts := authhttp.Options{
		BaseURL:   ts.URL,
		UserAgent: "authpipe-test",
		Store:     h.store,
		Auth:      refresh.NewHTTPRefresher(ts.URL+"/api/token/refresh/", ts.Client()),
		OnLogout:  func(error) { h.logouts.Add(1) },
	}
	if tweak != nil {
		tweak(&opts)
	}
	client, err := authhttp.New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h.client = client
	return h
}

func (h *harness) get(t *testing.T, ctx context.Context, path, id string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		req.Header.Set(authhttp.RequestIDHeader, id)
	}
	return h.client.Send(req)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(b))
}

var seedPair = &model.Credentials{Access: "access-1", Refresh: "refresh-1"}
