package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"booking_feed/internal/domain"
)

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupText returns the value at path as trimmed text; numbers are formatted
// without exponent so numeric ids survive the round trip.
func lookupText(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	return ""
}

/********** booking validation **********/

// toChange validates the fields the buffer depends on and builds the record
// to append. The payload is the whole booking as received.
func toChange(locationID int64, b domain.Booking) (domain.NewChange, error) {
	id := lookupText(b, "booking_id")
	if id == "" {
		return domain.NewChange{}, &domain.ValidationError{Field: "booking_id", Reason: "missing"}
	}
	if len(id) > 100 {
		return domain.NewChange{}, &domain.ValidationError{Field: "booking_id", Reason: "longer than 100 characters"}
	}

	arrival, err := requiredDate(b, "arrival_date")
	if err != nil {
		return domain.NewChange{}, err
	}
	departure, err := requiredDate(b, "departure_date")
	if err != nil {
		return domain.NewChange{}, err
	}
	if arrival.After(departure) {
		return domain.NewChange{}, &domain.ValidationError{Field: "departure_date", Reason: "before arrival_date"}
	}

	payload, err := b.JSON()
	if err != nil {
		return domain.NewChange{}, &domain.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return domain.NewChange{
		LocationID:    locationID,
		BookingID:     id,
		Payload:       payload,
		ArrivalDate:   arrival,
		DepartureDate: departure,
	}, nil
}

func requiredDate(b domain.Booking, field string) (domain.Date, error) {
	s := lookupText(b, field)
	if s == "" {
		return domain.Date{}, &domain.ValidationError{Field: field, Reason: "missing"}
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}, &domain.ValidationError{Field: field, Reason: err.Error()}
	}
	return d, nil
}

// describe summarises the required fields of a rejected booking for logs.
func describe(b domain.Booking) map[string]string {
	out := make(map[string]string, 3)
	for _, f := range []string{"booking_id", "arrival_date", "departure_date"} {
		if s := lookupText(b, f); s != "" {
			out[f] = s
		} else {
			out[f] = "missing"
		}
	}
	return out
}
