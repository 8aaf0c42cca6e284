package app

import (
	"encoding/json"
	"errors"
	"testing"

	"booking_feed/internal/domain"
)

func TestToChange(t *testing.T) {
	b := domain.Booking{
		"booking_id":     float64(100),
		"arrival_date":   "2024-03-01 14:00:00",
		"departure_date": "2024-03-03",
		"guests":         []any{map[string]any{"firstname": "Ana"}},
	}
	c, err := toChange(7, b)
	if err != nil {
		t.Fatalf("toChange: %v", err)
	}
	if c.BookingID != "100" || c.LocationID != 7 {
		t.Fatalf("unexpected ids: %+v", c)
	}
	if c.ArrivalDate.String() != "2024-03-01" || c.DepartureDate.String() != "2024-03-03" {
		t.Fatalf("unexpected dates: %s %s", c.ArrivalDate, c.DepartureDate)
	}
	var back map[string]any
	if err := json.Unmarshal(c.Payload, &back); err != nil || back["guests"] == nil {
		t.Fatalf("payload should carry the full booking: %s", c.Payload)
	}
}

func TestToChange_Rejects(t *testing.T) {
	cases := map[string]domain.Booking{
		"booking_id":     {"arrival_date": "2024-03-01", "departure_date": "2024-03-02"},
		"arrival_date":   {"booking_id": "1", "arrival_date": "  ", "departure_date": "2024-03-02"},
		"departure_date": {"booking_id": "1", "arrival_date": "2024-03-05", "departure_date": "2024-03-02"},
	}
	for field, b := range cases {
		_, err := toChange(7, b)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Field != field {
			t.Fatalf("%s: unexpected error %v", field, err)
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: should match ErrValidation", field)
		}
	}
	if _, err := toChange(7, domain.Booking{"booking_id": "1", "arrival_date": "soon", "departure_date": "2024-03-02"}); err == nil {
		t.Fatalf("expected unparseable date to be rejected")
	}
}

func TestDescribe(t *testing.T) {
	got := describe(domain.Booking{"booking_id": "9"})
	if got["booking_id"] != "9" || got["arrival_date"] != "missing" || got["departure_date"] != "missing" {
		t.Fatalf("unexpected: %v", got)
	}
}
