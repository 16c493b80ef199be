// Package store remembers the slots this tool has reserved, so a slot the
// user cancelled on the site is not picked up again.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tennisScrapper/pkg/scraper"
)

// ErrInvalidRecord is returned for records missing part of their key
var ErrInvalidRecord = errors.New("record key incomplete")

const (
	StatusReserved = "reserved"
	StatusSelected = "selected"
)

// Key identifies a reserved slot
type Key struct {
	Date       int // YYYYMMDD
	VenueID    string
	FacilityID string
	StartTime  int // HHMM
}

// KeyOf returns the store key of a slot
func KeyOf(s scraper.Slot) Key {
	return Key{Date: s.Date, VenueID: s.VenueID, FacilityID: s.FacilityID, StartTime: s.StartTime}
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s/%04d", k.Date, k.VenueID, k.FacilityID, k.StartTime)
}

func (k Key) valid() bool {
	return k.Date > 0 && k.VenueID != "" && k.FacilityID != ""
}

// Record is one stored slot
type Record struct {
	Slot              scraper.Slot
	Status            string
	ReservationNumber string
	UpdatedAt         time.Time
}

// Store persists records keyed by Key. Save replaces records with the same key.
type Store interface {
	Save(ctx context.Context, records []Record) error
	Exists(ctx context.Context, key Key) (bool, error)
	List(ctx context.Context) ([]Record, error)
}

// Reserved builds records for slots booked under one reservation number
func Reserved(slots []scraper.Slot, number string) []Record {
	records := make([]Record, 0, len(slots))
	for _, s := range slots {
		records = append(records, Record{Slot: s, Status: StatusReserved, ReservationNumber: number})
	}
	return records
}
