package calendar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOnWeekOne(t *testing.T) {
	site, _ := newSite(t)
	site.ShowResults("1040", "10400010")
	nav := newNavigator(t)
	ctx := context.Background()

	assert.True(t, nav.IsOnWeekOne(ctx, site))

	site.SetWeek(2)
	assert.False(t, nav.IsOnWeekOne(ctx, site))
}

func TestIsOnWeekOneWithoutTable(t *testing.T) {
	site, _ := newSite(t)
	site.Show("https://reserve.example.jp/web/index.jsp", "ホーム画面", `<p>no calendar</p>`)

	assert.False(t, newNavigator(t).IsOnWeekOne(context.Background(), site))
}

func TestNextAndPrevious(t *testing.T) {
	site, f := newSite(t)
	f.LastWeek = 1
	site.ShowResults("1040", "10400010")
	nav := newNavigator(t)
	ctx := context.Background()

	assert.False(t, nav.Previous(ctx, site), "previous is disabled on week one")
	assert.True(t, nav.Next(ctx, site))
	assert.Equal(t, 1, site.Week())
	assert.False(t, nav.Next(ctx, site), "next is disabled on the last week")
	assert.Equal(t, 1, site.Week())
	assert.True(t, nav.Previous(ctx, site))
	assert.Equal(t, 0, site.Week())
}

func TestNextWithoutControls(t *testing.T) {
	site, _ := newSite(t)
	site.Show("https://reserve.example.jp/web/x", "", `<table id="week-info"><tbody><tr><td id="20261019_10"></td></tr></tbody></table>`)

	assert.False(t, newNavigator(t).Next(context.Background(), site))
}

func TestBackToWeekOne(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		dropped int
		want    bool
		clicks  int
	}{
		{"already there", 0, 0, true, 0},
		{"from week four", 3, 0, true, 3},
		{"dropped ajax updates", 2, 2, true, 4},
		{"navigation stuck", 3, 10, false, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, _ := newSite(t)
			site.ShowResults("1040", "10400010")
			site.SetWeek(tt.start)
			site.DroppedWeekClicks = tt.dropped

			got := newNavigator(t).BackToWeekOne(context.Background(), site)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.clicks, site.Count("click:last-week"))
			if tt.want {
				assert.Equal(t, 0, site.Week())
			}
		})
	}
}

func TestExpandWeekly(t *testing.T) {
	site, _ := newSite(t)
	site.CollapsedCalendar = true
	site.ShowResults("1040", "10400010")
	nav := newNavigator(t)
	ctx := context.Background()

	require.Error(t, nav.WaitWeek(ctx, site))
	nav.ExpandWeekly(ctx, site)
	assert.Equal(t, 1, site.Count("click:weekly-toggle"))
	assert.NoError(t, nav.WaitWeek(ctx, site))

	nav.ExpandWeekly(ctx, site)
	assert.Equal(t, 1, site.Count("click:weekly-toggle"), "open panel is left alone")
}
