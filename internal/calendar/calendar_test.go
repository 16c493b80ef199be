package calendar

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"tennisScrapper/internal/browser/browsertest"
)

var today = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return today }

// newSite returns a site with one venue holding one facility
func newSite(t *testing.T) (*browsertest.Site, *browsertest.Facility) {
	t.Helper()
	site := browsertest.NewSite(today)
	v := site.AddVenue("1040", "しながわ区民公園", "1200_1040")
	f := v.AddFacility("10400010", "庭球場Ａ")
	return site, f
}

func newNavigator(t *testing.T) *Navigator {
	return NewNavigator(zaptest.NewLogger(t), clock)
}

func newDriver(t *testing.T) *Driver {
	log := zaptest.NewLogger(t)
	return NewDriver(NewNavigator(log, clock), NewVerifier(log), log)
}

func clicksOn(site *browsertest.Site, id string) int {
	return site.Count("click:"+id) + site.Count("jsclick:"+id) + site.Count("handler:"+id)
}
