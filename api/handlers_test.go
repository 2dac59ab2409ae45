package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/store"
)

func TestHandleHealth(t *testing.T) {
	s := NewServer(zerolog.Nop(), 0, nil)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleStatusWithoutDatabase(t *testing.T) {
	s := NewServer(zerolog.Nop(), 0, nil)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Zero(t, resp.OpenTransactions)
}

func TestHandleStatusCountsCases(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	defer database.Close()

	events := []store.CaseEvent{
		{CaseID: "case-1", State: "received"},
		{CaseID: "case-1", State: "retained"},
		{CaseID: "case-2", State: "received"},
		{CaseID: "case-3", State: "received"},
		{CaseID: "case-3", State: "no_route"},
	}
	for i := range events {
		require.NoError(t, database.Client().Create(&events[i]).Error)
	}
	require.NoError(t, database.Client().Create(&store.PendingTransaction{
		TxHash: "0x01", CaseID: "case-1", Status: store.TxStatusTimedOut,
	}).Error)

	s := NewServer(zerolog.Nop(), 0, database)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.CasesByState["received"])
	assert.Equal(t, int64(1), resp.CasesByState["retained"])
	assert.Equal(t, int64(1), resp.CasesByState["no_route"])
	assert.Equal(t, int64(1), resp.OpenTransactions)
}

func TestHandleStatusRejectsNonGet(t *testing.T) {
	s := NewServer(zerolog.Nop(), 0, nil)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
