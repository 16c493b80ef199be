package calendar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tennisScrapper/internal/browser/browsertest"
	"tennisScrapper/pkg/scraper"
)

func visits(res Result, dir Direction) []int {
	var weeks []int
	for _, v := range res.Visits {
		if v.Direction == dir {
			weeks = append(weeks, v.Week)
		}
	}
	return weeks
}

func TestScanEmptyCalendar(t *testing.T) {
	site, _ := newSite(t)
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	assert.Empty(t, res.Slots)
	assert.False(t, res.Clicked)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, visits(res, Forward))
	assert.Equal(t, []int{5, 4, 3, 2, 1, 0}, visits(res, Backward))
}

func TestScanSingleCellInWeekThree(t *testing.T) {
	site, f := newSite(t)
	c := f.AddCell(2, 3, "40", 1500, 1700)
	site.ShowResults("1040", "10400010")
	id := site.CellID(c)

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	slots := scraper.Dedupe(res.Slots)
	require.Len(t, slots, 1)
	assert.Equal(t, 1500, slots[0].StartTime)
	assert.Equal(t, 1700, slots[0].EndTime)
	assert.Equal(t, "15:00", slots[0].StartDisplay)
	assert.Equal(t, "1040", slots[0].VenueID)
	assert.Equal(t, "10400010", slots[0].FacilityID)
	assert.Equal(t, "しながわ区民公園", slots[0].VenueName)
	assert.Equal(t, "庭球場Ａ", slots[0].FacilityName)
	assert.Equal(t, id, slots[0].CellID)
	assert.Equal(t, 20261105, slots[0].Date)

	assert.True(t, res.Clicked)
	assert.True(t, c.Selected)
	assert.Equal(t, 1, site.Count("click:"+id))
	assert.Equal(t, []string{id}, res.Selected())
}

func TestScanStopsAtLastAvailableWeek(t *testing.T) {
	site, f := newSite(t)
	f.LastWeek = 3
	for w := 0; w < browsertest.Weeks; w++ {
		f.AddCell(w, 1, "10", 900, 1100)
	}
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	assert.Equal(t, 3, res.LastWeek)
	assert.Equal(t, []int{0, 1, 2, 3}, visits(res, Forward))
	backward := visits(res, Backward)
	require.NotEmpty(t, backward)
	assert.Equal(t, 3, backward[0], "backward pass starts where forward stopped")

	slots := scraper.Dedupe(res.Slots)
	assert.Len(t, slots, 4)
	for _, s := range slots {
		assert.Less(t, s.Date, 20261116, "no slot from weeks five or six")
	}
}

func TestScanNeverClicksSelectedCells(t *testing.T) {
	site, f := newSite(t)
	pre := []*browsertest.Cell{
		f.AddCell(0, 1, "10", 900, 1100),
		f.AddCell(1, 2, "20", 1100, 1300),
		f.AddCell(4, 6, "30", 1300, 1500),
	}
	for _, c := range pre {
		c.Selected = true
	}
	fresh := f.AddCell(0, 2, "10", 900, 1100)
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	for _, c := range pre {
		id := site.CellID(c)
		assert.Zero(t, clicksOn(site, id), "cell %s must not be toggled", id)
		assert.True(t, c.Selected)
	}
	assert.True(t, fresh.Selected)
	assert.True(t, res.Clicked)
	assert.Len(t, res.Selected(), 4)

	var already int
	for _, a := range res.Attempts {
		if a.Outcome == AlreadySelected {
			already++
		}
	}
	assert.Equal(t, 3, already)
}

func TestScanOnlyPreselectedDoesNotSetFlag(t *testing.T) {
	site, f := newSite(t)
	f.AddCell(0, 1, "10", 900, 1100).Selected = true
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)
	assert.False(t, res.Clicked)
	assert.NotEmpty(t, res.Slots)
}

func TestScanRepairsDroppedSelection(t *testing.T) {
	site, f := newSite(t)
	dropped := f.AddCell(0, 4, "10", 900, 1100)
	dropped.DropOnLeave = true
	kept := f.AddCell(1, 0, "20", 1100, 1300)
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	id := site.CellID(dropped)
	assert.Equal(t, 2, site.Count("click:"+id), "one forward click and exactly one repair click")
	assert.True(t, dropped.Selected)
	assert.Equal(t, 1, site.Count("click:"+site.CellID(kept)))
	assert.True(t, kept.Selected)

	var repair []Attempt
	for _, a := range res.Attempts {
		if a.Direction == Backward {
			repair = append(repair, a)
		}
	}
	require.Len(t, repair, 1)
	assert.Equal(t, id, repair[0].CellID)
	assert.Equal(t, Verified, repair[0].Outcome)
	assert.Contains(t, res.Selected(), id)
}

func TestScanEscalatesClickMethods(t *testing.T) {
	tests := []struct {
		name         string
		unresponsive int
		outcome      Outcome
		method       string
		events       map[string]int
	}{
		{"mouse click works", 0, Verified, "click", map[string]int{"click": 1, "jsclick": 0, "handler": 0}},
		{"script click needed", 1, Verified, "script", map[string]int{"click": 1, "jsclick": 1, "handler": 0}},
		{"handler needed", 2, Verified, "handler", map[string]int{"click": 1, "jsclick": 1, "handler": 1}},
		// the repair pass re-clicks the unverified cell once
		{"nothing verifies", 3, Unverified, "", map[string]int{"click": 2, "jsclick": 1, "handler": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, f := newSite(t)
			c := f.AddCell(0, 1, "10", 900, 1100)
			c.Unresponsive = tt.unresponsive
			site.ShowResults("1040", "10400010")
			id := site.CellID(c)

			res, err := newDriver(t).Scan(context.Background(), site)
			require.NoError(t, err)

			require.NotEmpty(t, res.Attempts)
			first := res.Attempts[0]
			assert.Equal(t, tt.outcome, first.Outcome)
			assert.Equal(t, tt.method, first.Method)
			for ev, n := range tt.events {
				assert.Equal(t, n, site.Count(ev+":"+id), ev)
			}
			assert.True(t, res.Clicked, "an attempted click counts even when unverified")
		})
	}
}

func TestScanSkipsKnownCancelledSlots(t *testing.T) {
	site, f := newSite(t)
	cancelled := f.AddCell(0, 1, "10", 900, 1100)
	f.AddCell(0, 1, "20", 1100, 1300)
	site.ShowResults("1040", "10400010")

	d := newDriver(t)
	d.Known = func(_ context.Context, s scraper.Slot) bool { return s.StartTime == 900 }
	res, err := d.Scan(context.Background(), site)
	require.NoError(t, err)

	assert.Zero(t, clicksOn(site, site.CellID(cancelled)))
	for _, s := range res.Slots {
		assert.NotEqual(t, 900, s.StartTime)
	}
	assert.Len(t, scraper.Dedupe(res.Slots), 1)
}

func TestScanSkipsCellsWithoutReserveAction(t *testing.T) {
	site, f := newSite(t)
	c := f.AddCell(0, 1, "10", 900, 1100)
	c.RawOnclick = "showInfo(this)"
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	assert.Empty(t, res.Slots)
	assert.False(t, res.Clicked)
	assert.Zero(t, clicksOn(site, site.CellID(c)))
}

func TestScanReturnsToWeekOneFirst(t *testing.T) {
	site, f := newSite(t)
	c := f.AddCell(0, 0, "10", 900, 1100)
	site.ShowResults("1040", "10400010")
	site.SetWeek(3)

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, 0, visits(res, Forward)[0])
	assert.True(t, c.Selected)
}

func TestScanAbortsWhenWeekOneUnreachable(t *testing.T) {
	site, _ := newSite(t)
	site.ShowResults("1040", "10400010")
	site.SetWeek(3)
	site.DroppedWeekClicks = 100

	_, err := newDriver(t).Scan(context.Background(), site)
	assert.ErrorIs(t, err, ErrNotOnWeekOne)
}

func TestScanWithoutCalendar(t *testing.T) {
	site, _ := newSite(t)
	site.NoCalendar = true
	site.ShowResults("1040", "10400010")

	res, err := newDriver(t).Scan(context.Background(), site)
	require.NoError(t, err)

	assert.Empty(t, res.Slots)
	assert.False(t, res.Clicked)
	for _, v := range res.Visits {
		assert.False(t, v.Loaded)
	}
}

func TestParseSlot(t *testing.T) {
	c := cell{id: "20261020_10", onclick: `setReserv(this, "1040", "10400010", 20261020, 900, 1100, 1)`}
	s, ok := parseSlot(c, "", "")
	require.True(t, ok)
	assert.Equal(t, 900, s.StartTime)
	assert.Equal(t, 1100, s.EndTime)
	assert.Equal(t, "10", s.TimeSlot)
	assert.Equal(t, "公園1040", s.VenueName)
	assert.Equal(t, "施設10400010", s.FacilityName)

	_, ok = parseSlot(cell{id: "bad", onclick: c.onclick}, "", "")
	assert.False(t, ok)
}
