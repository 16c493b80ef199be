package status

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	tr := NewTracker(0)
	tr.Record(Event{Kind: ScanStarted, RunID: "run-1"})
	tr.Record(Event{Kind: VenueStarted, Venue: "しながわ区民公園"})
	tr.Record(Event{Kind: Facility, Venue: "しながわ区民公園", Facility: "庭球場Ａ"})
	tr.Record(Event{Kind: Failed, Message: "boom"})
	tr.Record(Event{Kind: Booked, ReservationNumber: "2026101900"})
	tr.Record(Event{Kind: ScanFinished})

	s := tr.Snapshot()
	assert.Equal(t, ScanFinished, s.Phase)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, "しながわ区民公園", s.Venue)
	assert.Equal(t, "庭球場Ａ", s.Facility)
	assert.Equal(t, "boom", s.LastError)
	assert.Equal(t, "2026101900", s.ReservationNumber)
	assert.False(t, s.LastScan.IsZero())
	assert.Len(t, s.Events, 6)
}

func TestTrackerKeepsLatestEvents(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 10; i++ {
		tr.Record(Event{Kind: Facility, Facility: fmt.Sprint(i)})
	}
	s := tr.Snapshot()
	require.Len(t, s.Events, 3)
	assert.Equal(t, "7", s.Events[0].Facility)
	assert.Equal(t, "9", s.Events[2].Facility)

	// snapshots do not alias the tracker
	s.Events[0].Facility = "x"
	assert.Equal(t, "7", tr.Snapshot().Events[0].Facility)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tr := NewTracker(DefaultHistory)
	tr.Record(Event{Kind: ScanStarted, RunID: "run-1", Time: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)})
	r := Handler(tr)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, ScanStarted, got.Phase)
	require.Len(t, got.Events, 1)
}
