package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	a := Slot{Date: 20261020, VenueID: "1040", FacilityID: "10400010", StartTime: 900, EndTime: 1100, CellID: "20261020_10"}
	b := Slot{Date: 20261020, VenueID: "1040", FacilityID: "10400020", StartTime: 900, EndTime: 1100, CellID: "20261020_10"}
	dup := a
	dup.FacilityName = "second pass"

	out := Dedupe([]Slot{a, b, dup})
	require.Len(t, out, 2)
	assert.Equal(t, a, out[0])
	assert.Equal(t, b, out[1])
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "09:00", FormatTime(900))
	assert.Equal(t, "13:30", FormatTime(1330))
	assert.Equal(t, "00:00", FormatTime(0))
}

func TestSplitCellID(t *testing.T) {
	tests := []struct {
		in   string
		date int
		slot string
		ok   bool
	}{
		{"20261020_10", 20261020, "10", true},
		{"20261020", 0, "", false},
		{"2026102_10", 0, "", false},
		{"abcdefgh_10", 0, "", false},
		{"20261020_", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			date, slot, ok := SplitCellID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.date, date)
			assert.Equal(t, tt.slot, slot)
		})
	}
}

func TestSlotDates(t *testing.T) {
	s := Slot{Date: 20261020, StartDisplay: "09:00", EndDisplay: "11:00"}
	assert.Equal(t, []string{"2026/10/20 09:00-11:00"}, SlotDates([]Slot{s}))
}
