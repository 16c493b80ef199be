package browsertest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func (s *Site) activate(sel, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.find(sel)
	if err != nil {
		return err
	}
	key := node.AttrOr("id", "")
	if key == "" && goquery.NodeName(node) == "label" {
		key = "label:" + node.AttrOr("for", "")
	}
	if key == "" && strings.Contains(node.AttrOr("class", ""), "btn-back") {
		key = "btn-back"
	}
	if method == "handler" && node.AttrOr("onclick", "") == "" {
		return fmt.Errorf("element %s has no click handler", sel)
	}
	if _, disabled := node.Attr("disabled"); disabled {
		s.record("%s:disabled:%s", method, key)
		return nil
	}
	s.record("%s:%s", method, key)

	if s.static != nil {
		return nil
	}
	if c := s.cellByID(key); c != nil {
		s.toggle(c)
		return nil
	}
	s.press(key)
	return nil
}

func (s *Site) cellByID(id string) *Cell {
	if s.page != "results" || s.facility == nil {
		return nil
	}
	for _, c := range s.facility.Cells {
		if s.CellID(c) == id {
			return c
		}
	}
	return nil
}

// toggle mirrors the site: clicking a selected cell unselects it
func (s *Site) toggle(c *Cell) {
	if c.Unresponsive > 0 {
		c.Unresponsive--
		return
	}
	c.Selected = !c.Selected
}

func (s *Site) press(key string) {
	switch key {
	case "btn-login":
		s.page, s.url = "login", s.BaseURL+"/rsvWTransUserLoginAction.do"
		s.form = map[string]string{}
		s.loginError = false
	case "btn-logout":
		s.loggedIn = false
		s.goHome("index.jsp")
	case "btn-light":
		s.goHome("index.jsp")
	case "btn-back":
		if s.page == "payment" {
			s.goHome("rsvWOpeHomeAction.do")
		}
	case "btn-search":
		s.submitSearch()
	case "change-condition":
		s.formOpen = true
	case "thismonth", "label:thismonth":
		s.form["thismonth"] = "1"
	case "tab-facility":
		s.dateTab = false
	case "tab-date":
		s.dateTab = true
	case "unreserved-moreBtn":
		if s.moreLeft > 0 {
			s.moreLeft--
		}
	case "weekly-toggle":
		s.weeklyOpen = !s.weeklyOpen
	case "next-week":
		s.moveWeek(1)
	case "last-week":
		s.moveWeek(-1)
	case "ruleFg_1", "label:ruleFg_1":
		if s.page == "terms" {
			s.termsAgreed = true
		}
	case "btn-go":
		s.pressGo()
	}
}

func (s *Site) pressGo() {
	switch s.page {
	case "login":
		if !s.RejectLogin && s.form["userId"] == s.UserID && s.form["password"] == s.Password {
			s.loggedIn = true
			s.Logins++
			for _, c := range s.selectedCells() {
				c.Selected = false
				s.record("login:dropped:%s", s.CellID(c))
			}
			s.goHome("rsvWUserAttestationLoginAction.do")
			return
		}
		s.loginError = true
		s.record("login:rejected")
	case "results":
		if !s.loggedIn {
			s.showTimeout()
			return
		}
		if len(s.selectedCells()) == 0 {
			s.record("reserve:nothing-selected")
			return
		}
		s.page, s.url = "terms", s.BaseURL+"/rsvWOpeReservedApplyAction.do"
		s.termsAgreed = false
	case "terms":
		if !s.termsAgreed {
			s.record("terms:not-agreed")
			return
		}
		s.page, s.url = "confirm", s.BaseURL+"/rsvWInstUseruleRsvApplyAction.do"
		for k := range s.form {
			if strings.HasPrefix(k, "peoples") {
				delete(s.form, k)
			}
		}
	case "confirm":
		if s.IgnoreSubmit {
			s.record("confirm:ignored")
			return
		}
		for i := range s.selectedCells() {
			if s.form[fmt.Sprintf("peoples%d", i+1)] == "" {
				s.record("confirm:missing-headcount")
				return
			}
		}
		if s.autoAccept {
			s.record("dialog:auto-accepted")
			s.completeBooking()
			return
		}
		s.dialog = DialogMessage
	case "complete":
		s.page, s.url = "payment", s.BaseURL+"/rsvWCreditInitListAction.do"
	}
}

func (s *Site) onSelect(id, value string) {
	switch id {
	case "bname":
		s.form["bname"] = value
		delete(s.form, "iname")
	case "iname", "purpose":
		s.form[id] = value
	case "facility-select":
		if s.TimeoutOnSwitch[value] {
			delete(s.TimeoutOnSwitch, value)
			s.loggedIn = false
			s.showTimeout()
			return
		}
		if f := s.facilityByID(value); f != nil {
			s.facility = f
			if !s.KeepWeekOnSwitch {
				s.week = 0
			}
		}
	}
}

func (s *Site) facilityByID(id string) *Facility {
	if s.venue == nil {
		return nil
	}
	for _, f := range s.venue.Facilities {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (s *Site) venueByArea(area string) *Venue {
	for _, v := range s.Venues {
		if v.AreaCode == area {
			return v
		}
	}
	return nil
}

func (s *Site) submitSearch() {
	if !s.loggedIn {
		s.showTimeout()
		return
	}
	v := s.venueByArea(s.form["bname"])
	if s.form["thismonth"] != "1" || v == nil || s.form["purpose"] != "31000000_31011700" || len(v.Facilities) == 0 {
		s.record("search:incomplete")
		return
	}
	s.venue = v
	s.facility = v.Facilities[0]
	if f := s.facilityByID(s.form["iname"]); f != nil {
		s.facility = f
	}
	s.openResults()
}

func (s *Site) openResults() {
	s.static = nil
	s.page, s.url = "results", s.BaseURL+"/rsvWOpeInstSrchVacantAction.do"
	s.week = 0
	s.dateTab = s.OpenOnDateTab
	s.moreLeft = s.MoreDates
	s.weeklyOpen = !s.CollapsedCalendar
	s.formOpen = false
}

func (s *Site) moveWeek(delta int) {
	if s.facility == nil {
		return
	}
	if s.DroppedWeekClicks > 0 {
		s.DroppedWeekClicks--
		s.record("week:dropped")
		return
	}
	next := s.week + delta
	if next < 0 || next > s.facility.LastWeek {
		return
	}
	for _, c := range s.facility.Cells {
		if c.Week == s.week && c.DropOnLeave && c.Selected {
			c.Selected = false
			c.DropOnLeave = false
		}
	}
	s.week = next
}

func (s *Site) goHome(path string) {
	s.static = nil
	s.page, s.url = "home", s.BaseURL+"/"+path
	s.formOpen = true
}

func (s *Site) showTimeout() {
	s.static = nil
	s.page, s.url = "timeout", s.BaseURL+"/rsvWOpeInstSrchVacantAction.do"
}

// selectedCells lists pending selections across every facility
func (s *Site) selectedCells() []*Cell {
	var out []*Cell
	for _, v := range s.Venues {
		for _, f := range v.Facilities {
			for _, c := range f.Cells {
				if c.Selected && !c.booked {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

func (s *Site) completeBooking() {
	for _, c := range s.selectedCells() {
		c.booked = true
		c.Selected = false
		c.Available = false
	}
	s.page, s.url = "complete", s.BaseURL+"/rsvWInstRsvApplyAction.do"
}
