package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"booking_feed/internal/app"
	"booking_feed/internal/domain"
	"booking_feed/internal/shared"
	"booking_feed/internal/storage/memory"
)

func appendChange(t *testing.T, b *memory.Buffer, loc int64, id, arrival, departure string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"booking_id": id})
	_, err := b.Append(context.Background(), domain.NewChange{
		LocationID: loc, BookingID: id, Payload: payload,
		ArrivalDate: date(arrival), DepartureDate: date(departure),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func ids(t *testing.T, resp app.FeedResponse) []string {
	t.Helper()
	out := make([]string, 0, len(resp.Records))
	for _, r := range resp.Records {
		var m map[string]string
		if err := json.Unmarshal(r, &m); err != nil {
			t.Fatalf("payload: %v", err)
		}
		out = append(out, m["booking_id"])
	}
	return out
}

func TestFeed_DefaultLookbackAndCursor(t *testing.T) {
	fn, clock := newClock()
	b := memory.NewBuffer(clock, 30*time.Second)
	feed := app.NewUpdateFeed(b, 2*time.Minute, 500*time.Millisecond, fn.Now)

	appendChange(t, b, 7, "old", "2024-03-01", "2024-03-03")
	fn.Advance(3 * time.Minute)
	appendChange(t, b, 7, "fresh", "2024-03-01", "2024-03-03")
	fn.Advance(time.Second)

	req := app.FeedRequest{LocationID: 7, DateFrom: date("2024-03-01"), DateTo: date("2024-03-31")}
	resp, err := feed.Poll(context.Background(), req)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got := ids(t, resp); len(got) != 1 || got[0] != "fresh" || resp.Count != 1 {
		t.Fatalf("first poll should only see changes inside the lookback: %v", got)
	}
	if want := fn.Now().Add(-500 * time.Millisecond); !resp.NewCursor.Equal(want) {
		t.Fatalf("new cursor %s, want %s", resp.NewCursor, want)
	}

	// echoing the cursor back returns nothing new
	req.Cursor = &resp.NewCursor
	resp2, _ := feed.Poll(context.Background(), req)
	if resp2.Count != 0 {
		t.Fatalf("expected no records after cursor, got %v", ids(t, resp2))
	}

	fn.Advance(time.Second)
	appendChange(t, b, 7, "later", "2024-03-10", "2024-03-12")
	fn.Advance(time.Second)
	req.Cursor = &resp2.NewCursor
	resp3, _ := feed.Poll(context.Background(), req)
	if got := ids(t, resp3); len(got) != 1 || got[0] != "later" {
		t.Fatalf("got %v", got)
	}
}

func TestFeed_IndependentConsumers(t *testing.T) {
	fn, clock := newClock()
	b := memory.NewBuffer(clock, 30*time.Second)
	feed := app.NewUpdateFeed(b, 2*time.Minute, 500*time.Millisecond, fn.Now)

	appendChange(t, b, 7, "a", "2024-03-01", "2024-03-02")
	fn.Advance(10 * time.Second)
	t1 := fn.Now()
	fn.Advance(10 * time.Second)
	appendChange(t, b, 7, "b", "2024-03-01", "2024-03-02")
	fn.Advance(10 * time.Second)
	t2 := fn.Now()
	fn.Advance(10 * time.Second)
	appendChange(t, b, 7, "c", "2024-03-01", "2024-03-02")
	fn.Advance(time.Second)

	req := func(c time.Time) app.FeedRequest {
		return app.FeedRequest{LocationID: 7, DateFrom: date("2024-03-01"), DateTo: date("2024-03-01"), Cursor: &c}
	}
	r2, _ := feed.Poll(context.Background(), req(t2))
	r1, _ := feed.Poll(context.Background(), req(t1))
	r2again, _ := feed.Poll(context.Background(), req(t2))

	got1, got2 := ids(t, r1), ids(t, r2)
	if len(got1) != 2 || got1[0] != "b" || got1[1] != "c" {
		t.Fatalf("consumer at t1: %v", got1)
	}
	if len(got2) != 1 || got2[0] != "c" {
		t.Fatalf("consumer at t2: %v", got2)
	}
	seen := map[string]bool{}
	for _, id := range got1 {
		seen[id] = true
	}
	for _, id := range got2 {
		if !seen[id] {
			t.Fatalf("t1 consumer should see a superset; missing %s", id)
		}
	}
	if r2again.Count != r2.Count {
		t.Fatalf("a poll by another consumer changed results: %d vs %d", r2again.Count, r2.Count)
	}
}

func TestFeed_OtherLocationsAndDatesFiltered(t *testing.T) {
	fn, clock := newClock()
	b := memory.NewBuffer(clock, 30*time.Second)
	feed := app.NewUpdateFeed(b, 2*time.Minute, 500*time.Millisecond, fn.Now)

	appendChange(t, b, 7, "long-stay", "2024-01-01", "2024-01-10")
	appendChange(t, b, 7, "outside", "2024-02-01", "2024-02-03")
	appendChange(t, b, 8, "elsewhere", "2024-01-03", "2024-01-04")
	fn.Advance(time.Second)

	resp, err := feed.Poll(context.Background(), app.FeedRequest{
		LocationID: 7, DateFrom: date("2024-01-03"), DateTo: date("2024-01-05"),
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got := ids(t, resp); len(got) != 1 || got[0] != "long-stay" {
		t.Fatalf("got %v", got)
	}
}

func TestFeed_InvalidRequests(t *testing.T) {
	feed := app.NewUpdateFeed(memory.NewBuffer(nil, time.Second), time.Minute, 0, nil)
	cases := []app.FeedRequest{
		{LocationID: 0, DateFrom: date("2024-01-01"), DateTo: date("2024-01-02")},
		{LocationID: 1, DateTo: date("2024-01-02")},
		{LocationID: 1, DateFrom: date("2024-01-05"), DateTo: date("2024-01-02")},
	}
	for _, c := range cases {
		if _, err := feed.Poll(context.Background(), c); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("%+v: expected ErrInvalidRequest, got %v", c, err)
		}
	}
}

func TestFeed_ChangeAtCursorInstantIsDelivered(t *testing.T) {
	fn, clock := newClock()
	b := memory.NewBuffer(clock, 30*time.Second)
	feed := app.NewUpdateFeed(b, 2*time.Minute, 2*time.Second, fn.Now)
	req := app.FeedRequest{LocationID: 7, DateFrom: date("2024-03-01"), DateTo: date("2024-03-31")}

	first, err := feed.Poll(context.Background(), req)
	if err != nil || first.Count != 0 {
		t.Fatalf("first poll: %+v %v", first, err)
	}

	// stamped at the same instant the first read was bounded
	appendChange(t, b, 7, "racing", "2024-03-02", "2024-03-04")

	req.Cursor = &first.NewCursor
	second, _ := feed.Poll(context.Background(), req)
	if got := ids(t, second); len(got) != 1 || got[0] != "racing" {
		t.Fatalf("change at the cursor instant was not delivered: %v", got)
	}
}

func TestFeed_LateCommitInsideGraceIsDelivered(t *testing.T) {
	fn := &fakeNow{t: t0}
	stamped := fn.Now()
	// rows get detected_at = t0 however late they are appended
	b := memory.NewBuffer(shared.NewClock(func() time.Time { return stamped }), 30*time.Second)
	feed := app.NewUpdateFeed(b, 2*time.Minute, 2*time.Second, fn.Now)
	req := app.FeedRequest{LocationID: 7, DateFrom: date("2024-03-01"), DateTo: date("2024-03-31")}

	fn.Advance(time.Second)
	first, _ := feed.Poll(context.Background(), req)
	if first.Count != 0 {
		t.Fatalf("nothing is visible yet, got %d", first.Count)
	}
	appendChange(t, b, 7, "late", "2024-03-02", "2024-03-04")

	req.Cursor = &first.NewCursor
	second, _ := feed.Poll(context.Background(), req)
	if got := ids(t, second); len(got) != 1 || got[0] != "late" {
		t.Fatalf("late-committed change was skipped: %v", got)
	}
}
