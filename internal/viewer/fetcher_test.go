package viewer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetcherBuildsTableFromResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/exams/7A" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"student": "Asha", "mark": 91}]`))
	}))
	defer server.Close()

	table, err := NewFetcher(0, testLogger()).Fetch(context.Background(), server.URL+"/exams/7A")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !reflect.DeepEqual(table, Table{Columns: []string{"student", "mark"}, Rows: [][]string{{"Asha", "91"}}}) {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestFetcherRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := NewFetcher(0, testLogger()).Fetch(context.Background(), server.URL); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestFetcherRejectsInvalidTarget(t *testing.T) {
	t.Parallel()

	if _, err := NewFetcher(0, testLogger()).Fetch(context.Background(), "://bad"); err == nil {
		t.Fatalf("expected request error")
	}
}

func TestTargetFromRoute(t *testing.T) {
	t.Parallel()

	target := "http://127.0.0.1:8000/exams/7A?term=2"
	route := "/bot?url=" + url.QueryEscape(target)

	got, ok := TargetFromRoute(route, "/bot")
	if !ok || got != target {
		t.Fatalf("expected %q, got %q (%t)", target, got, ok)
	}

	if _, ok := TargetFromRoute("/home", "/bot"); ok {
		t.Fatalf("frontend routes have no viewer target")
	}
	if _, ok := TargetFromRoute("/bot", "/bot"); ok {
		t.Fatalf("viewer route without url has no target")
	}
	if _, ok := TargetFromRoute("/bot/?url=x", "/bot"); !ok {
		t.Fatalf("trailing slash should still match the viewer route")
	}
}
