package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"keydesk/client"
)

type keysFixture struct {
	store *KeysStore

	// holdPageOne, when non-nil, blocks page=1 list responses until closed.
	holdPageOne chan struct{}
	// pageOneArrived is closed once the server has received the page=1 request.
	pageOneArrived chan struct{}
}

func newKeysFixture(t *testing.T) *keysFixture {
	t.Helper()

	f := &keysFixture{}

	keysByPage := map[int][]client.Key{
		1: {
			{ID: "abc", KeyCode: "AAAA-1111", Game: "X", Duration: 30, MaxDevices: 1, Status: client.KeyStatusActive},
			{ID: "def", KeyCode: "BBBB-2222", Game: "Y", Duration: 7, MaxDevices: 2, Status: client.KeyStatusSold},
			{ID: "ghi", KeyCode: "CCCC-3333", Game: "X", Duration: 90, MaxDevices: 1, Status: client.KeyStatusExpired},
		},
		2: {
			{ID: "jkl", KeyCode: "DDDD-4444", Game: "Z", Duration: 30, MaxDevices: 1, Status: client.KeyStatusActive},
		},
	}

	r := chi.NewRouter()
	r.Get("/user/keys", func(w http.ResponseWriter, req *http.Request) {
		page, _ := strconv.Atoi(req.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		if page == 1 && f.holdPageOne != nil {
			close(f.pageOneArrived)
			<-f.holdPageOne
		}
		_ = json.NewEncoder(w).Encode(client.KeyPage{
			Keys:       keysByPage[page],
			Pagination: client.Pagination{Page: page, Limit: limit, Total: 4, TotalPages: 2},
		})
	})
	r.Get("/user/keys/available", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"availableKeys": []client.AvailableKey{
				{Game: "X", Duration: 30, Price: 25000, Count: 12},
				{Game: "Y", Duration: 7, Price: 10000, Count: 3},
			},
		})
	})
	r.Post("/user/keys/generate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Game     string `json:"game"`
			Duration int    `json:"duration"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Game == "SoldOut" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "No keys in stock"})
			return
		}
		_ = json.NewEncoder(w).Encode(client.GenerateResult{
			Key:        client.Key{ID: "new", KeyCode: "EEEE-5555", Game: body.Game, Duration: body.Duration, Status: client.KeyStatusSold},
			NewBalance: 50000,
			Success:    true,
		})
	})
	r.Delete("/user/keys/{id}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Key not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Key deleted"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	api, err := client.New(client.Config{BaseURL: srv.URL, AllowInsecureHTTP: true})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	f.store = NewKeysStore(api, KeysOptions{})
	return f
}

func TestFetchMinePaginationEcho(t *testing.T) {
	f := newKeysFixture(t)

	if err := f.store.FetchMine(context.Background(), 2, 10); err != nil {
		t.Fatalf("FetchMine() error = %v", err)
	}

	state := f.store.State()
	if state.Pagination == nil || state.Pagination.Page != 2 {
		t.Fatalf("Pagination = %+v, want page 2", state.Pagination)
	}
	if len(state.Mine) != 1 || state.Mine[0].ID != "jkl" {
		t.Fatalf("Mine = %+v, want page 2 contents", state.Mine)
	}
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	f := newKeysFixture(t)
	ctx := context.Background()

	if err := f.store.FetchMine(ctx, 1, 20); err != nil {
		t.Fatalf("FetchMine() error = %v", err)
	}
	before := f.store.State().Mine

	if err := f.store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	after := f.store.State().Mine
	if len(after) != len(before)-1 {
		t.Fatalf("list length = %d, want %d", len(after), len(before)-1)
	}
	for _, key := range after {
		if key.ID == "abc" {
			t.Fatal("deleted key still present")
		}
	}
}

func TestDeleteFailureLeavesListUnchanged(t *testing.T) {
	f := newKeysFixture(t)
	ctx := context.Background()

	if err := f.store.FetchMine(ctx, 1, 20); err != nil {
		t.Fatalf("FetchMine() error = %v", err)
	}
	before := f.store.State().Mine

	if err := f.store.Delete(ctx, "missing"); err == nil {
		t.Fatal("Delete() expected error")
	}

	state := f.store.State()
	if !reflect.DeepEqual(state.Mine, before) {
		t.Fatalf("list changed on failed delete: %+v != %+v", state.Mine, before)
	}
	if state.Error != "Key not found" {
		t.Fatalf("state.Error = %q, want server message", state.Error)
	}
}

func TestGenerateOnlySetsLastGenerated(t *testing.T) {
	f := newKeysFixture(t)
	ctx := context.Background()

	if err := f.store.FetchMine(ctx, 1, 20); err != nil {
		t.Fatalf("FetchMine() error = %v", err)
	}
	if err := f.store.FetchAvailable(ctx); err != nil {
		t.Fatalf("FetchAvailable() error = %v", err)
	}
	before := f.store.State()

	if err := f.store.Generate(ctx, "X", 30); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	after := f.store.State()
	if !reflect.DeepEqual(after.Mine, before.Mine) {
		t.Fatal("Generate() mutated the mine list")
	}
	if !reflect.DeepEqual(after.Available, before.Available) {
		t.Fatal("Generate() mutated the available list")
	}
	if after.LastGenerated == nil {
		t.Fatal("LastGenerated not set")
	}
	if after.LastGenerated.Key.Game != "X" || after.LastGenerated.Key.Duration != 30 {
		t.Fatalf("LastGenerated.Key = %+v, want game X duration 30", after.LastGenerated.Key)
	}

	f.store.ClearLastGenerated()
	if f.store.State().LastGenerated != nil {
		t.Fatal("ClearLastGenerated() did not reset the field")
	}
}

func TestGenerateFailure(t *testing.T) {
	f := newKeysFixture(t)

	if err := f.store.Generate(context.Background(), "SoldOut", 30); err == nil {
		t.Fatal("Generate() expected error")
	}

	state := f.store.State()
	if state.GenerateLoading {
		t.Fatal("GenerateLoading stuck after failure")
	}
	if state.Error != "No keys in stock" {
		t.Fatalf("state.Error = %q, want server message", state.Error)
	}
	if state.LastGenerated != nil {
		t.Fatal("LastGenerated set on failure")
	}
}

func TestOverlappingFetchesLatestRequestWins(t *testing.T) {
	f := newKeysFixture(t)
	ctx := context.Background()

	f.holdPageOne = make(chan struct{})
	f.pageOneArrived = make(chan struct{})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = f.store.FetchMine(ctx, 1, 20)
	}()

	// Ensure the page=1 request is in flight, then let page=2 win the race
	// to be the newest request before page=1 resolves.
	<-f.pageOneArrived
	if err := f.store.FetchMine(ctx, 2, 20); err != nil {
		t.Fatalf("FetchMine(2) error = %v", err)
	}
	close(f.holdPageOne)
	<-firstDone

	state := f.store.State()
	if state.Pagination == nil || state.Pagination.Page != 2 {
		t.Fatalf("Pagination = %+v, want page 2 after stale response discarded", state.Pagination)
	}
	if len(state.Mine) != 1 || state.Mine[0].ID != "jkl" {
		t.Fatalf("Mine = %+v, want page 2 contents", state.Mine)
	}
}
