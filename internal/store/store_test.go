package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tennisScrapper/pkg/scraper"
)

func slot(date, start int, facility string) scraper.Slot {
	return scraper.Slot{
		Date:         date,
		VenueID:      "1040",
		VenueName:    "しながわ区民公園",
		FacilityID:   facility,
		FacilityName: "庭球場Ａ",
		StartTime:    start,
		EndTime:      start + 200,
		StartDisplay: scraper.FormatTime(start),
		EndDisplay:   scraper.FormatTime(start + 200),
		PurposeCode:  scraper.PurposeCode,
		PurposeClass: scraper.PurposeClassCode,
		CellID:       "20261105_10",
		TimeSlot:     "10",
	}
}

// exercise runs the behaviour every Store must share
func exercise(t *testing.T, s Store) {
	ctx := context.Background()
	a := slot(20261105, 900, "10400010")
	b := slot(20261021, 1300, "10400020")

	ok, err := s.Exists(ctx, KeyOf(a))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, Reserved([]scraper.Slot{a, b}, "2026101900")))

	ok, err = s.Exists(ctx, KeyOf(a))
	require.NoError(t, err)
	assert.True(t, ok)

	other := KeyOf(a)
	other.StartTime = 1100
	ok, err = s.Exists(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)

	// same key replaces the record
	a.EndTime = 1200
	require.NoError(t, s.Save(ctx, Reserved([]scraper.Slot{a}, "2026101999")))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.Date, list[0].Slot.Date, "ordered by date")
	assert.Equal(t, "2026101999", list[1].ReservationNumber)
	assert.Equal(t, 1200, list[1].Slot.EndTime)
	assert.Equal(t, StatusReserved, list[1].Status)
	assert.False(t, list[1].UpdatedAt.IsZero())

	assert.ErrorIs(t, s.Save(ctx, []Record{{Slot: scraper.Slot{Date: 20261105}}}), ErrInvalidRecord)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE "+table)
	require.NoError(t, err)

	exercise(t, NewPostgres(pool))
}

func TestKeyOfIgnoresEndTime(t *testing.T) {
	a := slot(20261105, 900, "10400010")
	b := a
	b.EndTime = 1300
	assert.Equal(t, KeyOf(a), KeyOf(b))
	assert.Equal(t, "20261105/1040/10400010/0900", KeyOf(a).String())
}
