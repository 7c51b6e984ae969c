package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/ingest"
)

func newTestServer(t *testing.T) (*Server, *db.MockStore, *ingest.Stats) {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	stats := &ingest.Stats{}

	srv := New(config.APIConfig{ListenAddr: ":0"}, store, stats, logrus.NewEntry(logrus.New()))

	return srv, store, stats
}

func TestHealthOK(t *testing.T) {
	srv, store, _ := newTestServer(t)

	store.EXPECT().Ping(gomock.Any()).Return(nil)

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthDegraded(t *testing.T) {
	srv, store, _ := newTestServer(t)

	store.EXPECT().Ping(gomock.Any()).Return(errors.New("store unreachable"))

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	srv, _, stats := newTestServer(t)

	stats.GPSAccepted.Add(7)
	stats.HistoryWrites.Add(3)

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(7), body["gps_accepted"])
	assert.Equal(t, int64(3), body["history_writes"])
}
