package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fitcoach/plan-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *httpClient {
	return &httpClient{
		baseURL:    url,
		apiKey:     "test-key",
		maxRetries: 2,
		http:       &http.Client{Timeout: 5 * time.Second},
	}
}

func TestSearchSendsQueryAndAuth(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("name")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]domain.CatalogExercise{
			{ID: "ex-1", Name: "Bench Press"},
		})
	}))
	defer srv.Close()

	candidates, err := testClient(srv.URL).Search(context.Background(), "bench press")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ex-1", candidates[0].ID)
	assert.Equal(t, "bench press", gotQuery)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestCreateRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "ex-9"})
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).Create(context.Background(), domain.NewExerciseSpec{Name: "Goblet Squat"})
	require.NoError(t, err)
	assert.Equal(t, "ex-9", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCreateDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "duplicate name", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Create(context.Background(), domain.NewExerciseSpec{Name: "Goblet Squat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx is not retried")
}

func TestCreateRequiresName(t *testing.T) {
	_, err := testClient("http://unused").Create(context.Background(), domain.NewExerciseSpec{})
	require.Error(t, err)
}

func TestSearchGivesUpAfterRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Search(context.Background(), "squat")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial attempt plus two retries")
}
