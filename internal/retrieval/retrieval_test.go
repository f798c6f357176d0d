package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

func TestClient_Search(t *testing.T) {
	var gotReq searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer idx-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"content": "b", "source_id": "sku-2", "relevance_score": 0.5},
				{"content": "a", "source_id": "sku-1", "relevance_score": 0.9},
				{"content": "c", "source_id": "sku-0", "relevance_score": 0.5},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", WithAPIKey("idx-key"))
	docs, err := c.Search(context.Background(), "base líquida", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotReq.Query != "base líquida" || gotReq.K != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.SourceID)
	}
	if diff := cmp.Diff([]string{"sku-1", "sku-0"}, ids); diff != "" {
		t.Errorf("ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "index offline", http.StatusServiceUnavailable)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			_, err := NewClient(server.URL).Search(ctx, "labial", 5)
			if !domain.IsKind(err, domain.ErrorKindRetrieval) {
				t.Errorf("Search() error = %v, want retrieval error", err)
			}
		})
	}
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]CatalogEntry{
		{ID: "sku-101", Title: "Base líquida mate", Content: "Base de larga duración, tono cálido y frío.", Tags: []string{"rostro"}},
		{ID: "sku-102", Title: "Labial rojo", Content: "Labial mate de alta pigmentación.", Tags: []string{"labios"}},
		{ID: "sku-103", Title: "Base en polvo", Content: "Polvo compacto, tono cálido.", Tags: []string{"rostro"}},
		{ID: "kit-01", Title: "Kit emprendedora", Content: "Paquete de reventa al por mayor.", Metadata: map[string]string{"price": "1200"}},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

func TestCatalog_Search(t *testing.T) {
	c := testCatalog(t)

	docs, err := c.Search(context.Background(), "¿Tienen base tono cálido?", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) < 2 {
		t.Fatalf("got %d docs, want at least 2", len(docs))
	}
	for _, d := range docs[:2] {
		if d.SourceID != "sku-101" && d.SourceID != "sku-103" {
			t.Errorf("unexpected top hit %s", d.SourceID)
		}
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].RelevanceScore > docs[i-1].RelevanceScore {
			t.Errorf("results not sorted by score at %d", i)
		}
	}

	none, _ := c.Search(context.Background(), "zapatos", 5)
	if len(none) != 0 {
		t.Errorf("unrelated query returned %d docs", len(none))
	}
}

func TestCatalog_Idempotent(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	first, _ := c.Search(ctx, "base mate tono", 3)
	for i := 0; i < 20; i++ {
		again, _ := c.Search(ctx, "base mate tono", 3)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("search %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestCatalog_Validation(t *testing.T) {
	if _, err := NewCatalog([]CatalogEntry{{Title: "x"}}); err == nil {
		t.Error("entry without id should fail")
	}
	if _, err := NewCatalog([]CatalogEntry{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Error("duplicate ids should fail")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
documents:
  - id: sku-1
    title: Rímel
    content: Máscara de pestañas a prueba de agua.
    metadata:
      price: "180"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	docs, _ := c.Search(context.Background(), "rimel", 1)
	if len(docs) != 1 || docs[0].Metadata["price"] != "180" {
		t.Errorf("Search() = %+v", docs)
	}
}

type countingIndex struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (c *countingIndex) Search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return []domain.RetrievedDocument{{SourceID: "sku-1", Content: query, Metadata: map[string]string{"k": "v"}}}, nil
}

func TestCached_Memoizes(t *testing.T) {
	inner := &countingIndex{}
	c := NewCached(inner, 8, time.Minute)
	ctx := context.Background()

	first, _ := c.Search(ctx, "Base Líquida", 5)
	first[0].Metadata["k"] = "mutated"

	second, _ := c.Search(ctx, "base liquida", 5)
	if inner.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", inner.calls.Load())
	}
	if second[0].Metadata["k"] != "v" {
		t.Error("cache handed out shared metadata")
	}

	c.Search(ctx, "base liquida", 3)
	if inner.calls.Load() != 2 {
		t.Error("different k should miss the cache")
	}

	c.Purge()
	c.Search(ctx, "base liquida", 5)
	if inner.calls.Load() != 3 {
		t.Error("Purge() should empty the cache")
	}
}

func TestCached_CollapsesConcurrentSearches(t *testing.T) {
	inner := &countingIndex{delay: 50 * time.Millisecond}
	c := NewCached(inner, 8, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Search(context.Background(), "labial", 5)
		}()
	}
	wg.Wait()

	if n := inner.calls.Load(); n > 2 {
		t.Errorf("upstream calls = %d, want concurrent searches collapsed", n)
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingIndex{err: errors.New("offline")}
	c := NewCached(inner, 8, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Search(context.Background(), "labial", 5); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", inner.calls.Load())
	}
}

type ctxIndex struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *ctxIndex) Search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	c.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.delay):
		return []domain.RetrievedDocument{{SourceID: "sku-1", Content: query}}, nil
	}
}

func TestCached_CallerDeadlineDoesNotLeak(t *testing.T) {
	inner := &ctxIndex{delay: 100 * time.Millisecond}
	c := NewCached(inner, 8, time.Minute)

	var (
		wg         sync.WaitGroup
		shortErr   error
		patient    []domain.RetrievedDocument
		patientErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, shortErr = c.Search(ctx, "labial", 5)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		patient, patientErr = c.Search(context.Background(), "labial", 5)
	}()
	wg.Wait()

	if !domain.IsKind(shortErr, domain.ErrorKindRetrieval) {
		t.Errorf("short caller error = %v, want retrieval error", shortErr)
	}
	if patientErr != nil || len(patient) != 1 {
		t.Fatalf("patient caller got docs=%d err=%v", len(patient), patientErr)
	}

	// The shared search finished and was cached despite the first caller leaving.
	if _, err := c.Search(context.Background(), "labial", 5); err != nil {
		t.Fatal(err)
	}
	if n := inner.calls.Load(); n > 2 {
		t.Errorf("upstream calls = %d", n)
	}
}

func TestCached_FetchTimeout(t *testing.T) {
	inner := &ctxIndex{delay: time.Second}
	c := NewCached(inner, 8, time.Minute, WithFetchTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := c.Search(context.Background(), "labial", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Search() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Search() took %v, fetch timeout ignored", elapsed)
	}
}
