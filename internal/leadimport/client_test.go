package leadimport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCreateJobAndSubmit(t *testing.T) {
	jobID := uuid.New()
	var submitted Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/imports":
			var spec JobSpec
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
			assert.Equal(t, "leads.csv", spec.FileName)
			assert.Equal(t, 3, spec.TotalRows)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": jobID})
		case "/api/imports/process":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			_ = json.NewEncoder(w).Encode(Result{Success: true, SuccessCount: 1, FailCount: 0, Errors: []RowError{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret")

	id, err := client.CreateJob(context.Background(), JobSpec{FileName: "leads.csv", TotalRows: 3})
	require.NoError(t, err)
	assert.Equal(t, jobID, id)

	result, err := client.Submit(context.Background(), Request{
		ImportID: id,
		Rows:     []Row{{RowNumber: 2, FullName: "Ann", Email: "ann@x.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, id, submitted.ImportID)
	require.Len(t, submitted.Rows, 1)
	assert.Equal(t, 2, submitted.Rows[0].RowNumber)
}

func TestClientSurfacesServerErrors(t *testing.T) {
	tests := map[string]string{
		`{"error":"Import job not found"}`:                                   "Import job not found",
		`{"error":{"code":"FORBIDDEN","message":"Insufficient permissions"}}`: "Insufficient permissions",
		`upstream exploded`: "upstream exploded",
	}
	for body, want := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(body))
		}))

		_, err := NewClient(srv.URL, "").Submit(context.Background(), Request{ImportID: uuid.New()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), want)
		assert.Contains(t, err.Error(), "400")
		srv.Close()
	}
}

func TestClientCreateJobRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").CreateJob(context.Background(), JobSpec{FileName: "x.csv"})
	assert.Error(t, err)
}
