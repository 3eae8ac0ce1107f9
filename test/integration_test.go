//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/greptbot/internal/dispatcher"
	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/governor"
	"github.com/user/greptbot/internal/indexer"
	"github.com/user/greptbot/internal/store"
	"github.com/user/greptbot/internal/types"
)

var testRepo = types.Repo{Remote: "github", Owner: "acme", Name: "widgets", Branch: "main"}

// fakeUpstream mimics the code-intelligence API: a repository submitted for
// indexing reports processing once and then completed, and queries answer.
func fakeUpstream(t *testing.T) *httptest.Server {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repositories", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "started"})
	})
	mux.HandleFunc("GET /repositories/", func(w http.ResponseWriter, r *http.Request) {
		polls++
		// The pre-check before submission sees an unregistered repo.
		if polls == 1 {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "repository not found"})
			return
		}
		status := "processing"
		if polls > 3 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": status, "filesProcessed": polls, "numFiles": 5,
		})
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": "the widget loop lives in pkg/widgets",
			"sources": []map[string]any{{"filepath": "pkg/widgets/loop.go", "linestart": 1, "lineend": 20}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd(t *testing.T) {
	srv := fakeUpstream(t)

	db, err := store.Open(filepath.Join(t.TempDir(), "greptbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.SeedOwner(ctx, "owner"); err != nil {
		t.Fatal(err)
	}

	client := gateway.New(srv.URL, "key", "token")
	ix := indexer.New(client, db.Repos(), indexer.WithPollInterval(time.Millisecond))

	status, err := ix.AddRepository(ctx, testRepo, nil)
	if err != nil {
		t.Fatalf("AddRepository failed: %v", err)
	}
	if status != types.StatusCompleted {
		t.Fatalf("expected completed, got %v", status)
	}
	rec, err := db.Repos().Get(ctx, testRepo)
	if err != nil || rec == nil {
		t.Fatalf("repo not registered: %v", err)
	}
	if rec.LastIndexedAt == nil {
		t.Error("completion should stamp last_indexed_at")
	}

	gov := governor.New(db.Usage(), db.Config(), "owner", governor.WithCooldown(0))
	disp, err := dispatcher.New(client, gov, db.Repos(), db.Config(), 2)
	if err != nil {
		t.Fatal(err)
	}

	replies, err := disp.Process(ctx, dispatcher.Request{
		UserID: "u1", ChatID: "c1", MessageID: "m1",
		Class: types.ClassQuery, Text: "where is the widget loop?",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}

	count, err := db.Usage().CountSince(ctx, "u1", types.ClassQuery, time.Now().Add(-time.Minute))
	if err != nil || count != 1 {
		t.Errorf("expected 1 usage row, got %d (err %v)", count, err)
	}
}
