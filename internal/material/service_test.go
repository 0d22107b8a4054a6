package material

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

type fakeMaterialStore struct {
	materials map[int64]*domain.Material
	nextID    int64
	searchErr error
}

func newFakeMaterialStore() *fakeMaterialStore {
	return &fakeMaterialStore{materials: map[int64]*domain.Material{}}
}

func (f *fakeMaterialStore) CreateMaterial(ctx context.Context, m *domain.Material) error {
	f.nextID++
	m.ID = f.nextID
	f.materials[m.ID] = m
	return nil
}

func (f *fakeMaterialStore) GetMaterial(ctx context.Context, id int64) (*domain.Material, error) {
	m, ok := f.materials[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

func (f *fakeMaterialStore) ListMaterials(ctx context.Context, page, limit int) ([]*domain.Material, int, error) {
	var out []*domain.Material
	for _, m := range f.materials {
		out = append(out, m)
	}
	return out, len(out), nil
}

func (f *fakeMaterialStore) DeleteMaterial(ctx context.Context, id int64) error {
	if _, ok := f.materials[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.materials, id)
	return nil
}

func (f *fakeMaterialStore) UpdateMaterialEmbedding(ctx context.Context, id int64, status, errMsg string) error {
	m, ok := f.materials[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.EmbeddingStatus = status
	m.EmbeddingError = errMsg
	return nil
}

func (f *fakeMaterialStore) SearchMaterials(ctx context.Context, query string, topK int) ([]*domain.Material, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []*domain.Material
	for _, m := range f.materials {
		if strings.Contains(m.Content, query) || strings.Contains(m.Title, query) {
			out = append(out, m)
		}
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestCreate_RequiresTitleAndContent(t *testing.T) {
	svc := NewService(newFakeMaterialStore(), nil, testLogger())

	if _, err := svc.Create(t.Context(), " ", "内容", "", ""); err == nil {
		t.Error("expected error for empty title")
	}
	if _, err := svc.Create(t.Context(), "标题", " ", "", ""); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestCreate_PendingWithoutEmbedder(t *testing.T) {
	store := newFakeMaterialStore()
	svc := NewService(store, nil, testLogger())

	m, err := svc.Create(t.Context(), "行业报告", "报告正文", "行业,数据", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.EmbeddingStatus != "pending" {
		t.Errorf("embedding status = %q, want pending", m.EmbeddingStatus)
	}
}

func TestCreate_EmbedsWhenConfigured(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2}}},
		})
	}))
	defer embedSrv.Close()

	store := newFakeMaterialStore()
	svc := NewService(store, NewEmbeddingsClient("k", "m", embedSrv.URL, embedSrv.Client()), testLogger())

	m, err := svc.Create(t.Context(), "标题", "内容", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.EmbeddingStatus != "completed" {
		t.Errorf("embedding status = %q, want completed", m.EmbeddingStatus)
	}
}

func TestCreate_EmbeddingFailureKeepsMaterial(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer embedSrv.Close()

	store := newFakeMaterialStore()
	svc := NewService(store, NewEmbeddingsClient("k", "m", embedSrv.URL, embedSrv.Client()), testLogger())

	m, err := svc.Create(t.Context(), "标题", "内容", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.EmbeddingStatus != "failed" || m.EmbeddingError == "" {
		t.Errorf("status = %q, error = %q", m.EmbeddingStatus, m.EmbeddingError)
	}
	if _, ok := store.materials[m.ID]; !ok {
		t.Error("material dropped on embedding failure")
	}
}

func TestRetrieve_RankDerivedScores(t *testing.T) {
	store := newFakeMaterialStore()
	svc := NewService(store, nil, testLogger())

	for _, title := range []string{"素材一", "素材二"} {
		if _, err := svc.Create(t.Context(), title, "关于写作的素材内容", "", ""); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := svc.Retrieve(t.Context(), "写作", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Score != 1.0 || hits[1].Score != 0.5 {
		t.Errorf("scores = %v, %v", hits[0].Score, hits[1].Score)
	}
}

func TestGetDelete_NotFound(t *testing.T) {
	svc := NewService(newFakeMaterialStore(), nil, testLogger())

	var apiErr *domain.APIError
	if _, err := svc.Get(t.Context(), 7); !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if err := svc.Delete(t.Context(), 7); !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
}
