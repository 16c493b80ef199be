package scraper

import (
	"fmt"
	"strconv"
	"strings"
)

// Activity codes sent with every tennis reservation.
const (
	PurposeCode      = "31000000"
	PurposeClassCode = "31011700"
)

// Slot represents one bookable calendar cell
type Slot struct {
	Date         int    `json:"use_ymd"` // YYYYMMDD
	VenueID      string `json:"bcd"`
	VenueName    string `json:"bcd_name"`
	FacilityID   string `json:"icd"`
	FacilityName string `json:"icd_name"`
	StartTime    int    `json:"start_time"` // HHMM
	EndTime      int    `json:"end_time"`   // HHMM
	StartDisplay string `json:"start_time_display"`
	EndDisplay   string `json:"end_time_display"`
	PurposeCode  string `json:"pps_cd"`
	PurposeClass string `json:"pps_cls_cd"`
	CellID       string `json:"cell_id"`
	TimeSlot     string `json:"time_slot"`
}

// Key identifies a slot independent of the pass that produced it
type Key struct {
	Date       int
	VenueID    string
	FacilityID string
	StartTime  int
	EndTime    int
}

// Key returns the dedupe key of the slot
func (s Slot) Key() Key {
	return Key{
		Date:       s.Date,
		VenueID:    s.VenueID,
		FacilityID: s.FacilityID,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%d_%s_%s_%d_%d", k.Date, k.VenueID, k.FacilityID, k.StartTime, k.EndTime)
}

// Dedupe keeps the first occurrence of every slot key, preserving order
func Dedupe(slots []Slot) []Slot {
	seen := make(map[Key]struct{}, len(slots))
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if _, ok := seen[s.Key()]; ok {
			continue
		}
		seen[s.Key()] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FormatTime renders an HHMM integer as "HH:MM"
func FormatTime(hhmm int) string {
	return fmt.Sprintf("%02d:%02d", hhmm/100, hhmm%100)
}

// SplitCellID splits a "YYYYMMDD_timecode" cell id
func SplitCellID(cellID string) (date int, timeSlot string, ok bool) {
	prefix, slot, found := strings.Cut(cellID, "_")
	if !found || len(prefix) != 8 || slot == "" {
		return 0, "", false
	}
	d, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", false
	}
	return d, slot, true
}

// DisplayDate renders the slot date as YYYY/MM/DD
func (s Slot) DisplayDate() string {
	return fmt.Sprintf("%04d/%02d/%02d", s.Date/10000, s.Date/100%100, s.Date%100)
}

// SlotDates extracts display dates from slots
func SlotDates(slots []Slot) []string {
	dates := make([]string, len(slots))
	for i, slot := range slots {
		dates[i] = fmt.Sprintf("%s %s-%s", slot.DisplayDate(), slot.StartDisplay, slot.EndDisplay)
	}
	return dates
}
