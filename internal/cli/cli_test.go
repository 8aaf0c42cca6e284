package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"booking_feed/internal/app"
	"booking_feed/internal/cli"
	"booking_feed/internal/domain"
	"booking_feed/internal/shared"
	"booking_feed/internal/storage/memory"
)

type directory struct{}

func (directory) ListLocations(context.Context) ([]domain.Location, error) {
	return []domain.Location{{ID: 3, Name: "Lakeside", IsActive: true}}, nil
}

func (directory) GetIntegration(_ context.Context, id int64) (domain.Integration, bool, error) {
	return domain.Integration{LocationID: id, IsActive: true}, true, nil
}

type source struct{}

func (source) FetchBookings(context.Context, domain.Credentials, time.Time, time.Time) ([]domain.Booking, error) {
	return []domain.Booking{
		{"booking_id": "A", "arrival_date": "2024-06-01", "departure_date": "2024-06-03"},
		{"booking_id": "B", "arrival_date": "2024-06-02", "departure_date": "2024-06-04"},
	}, nil
}

func newOpener(t *testing.T) (cli.Opener, *int) {
	t.Helper()
	svc := app.NewService(shared.Config{
		PollingEnabled:    true,
		BufferTTL:         5 * time.Minute,
		BootstrapLookback: 2 * time.Minute,
		PollWorkers:       1,
	}, app.Deps{
		Buffer:       memory.NewBuffer(nil, 30*time.Second),
		Watermarks:   memory.NewWatermarks(),
		Directory:    directory{},
		Integrations: directory{},
		Source:       source{},
	})
	closed := 0
	return func(context.Context) (*app.Service, func(), error) {
		return svc, func() { closed++ }, nil
	}, &closed
}

func execute(t *testing.T, open cli.Opener, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	root := cli.NewRoot(open, &out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("feedctl %v: %v", args, err)
	}
	return out.Bytes()
}

func TestTriggerStatsRecent(t *testing.T) {
	open, closed := newOpener(t)

	var rep app.CycleReport
	if err := json.Unmarshal(execute(t, open, "trigger"), &rep); err != nil {
		t.Fatalf("decode trigger: %v", err)
	}
	if rep.Trigger != app.TriggerManual || rep.Totals.Stored != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	var st domain.BufferStats
	_ = json.Unmarshal(execute(t, open, "stats"), &st)
	if st.Count != 2 {
		t.Fatalf("expected 2 buffered, got %d", st.Count)
	}

	var recent []map[string]any
	_ = json.Unmarshal(execute(t, open, "recent", "--location", "3", "--limit", "1"), &recent)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent entry, got %d", len(recent))
	}

	var sts []domain.LocationStatus
	_ = json.Unmarshal(execute(t, open, "status"), &sts)
	if len(sts) != 1 || sts[0].LastSuccessfulCheck == nil {
		t.Fatalf("unexpected status: %+v", sts)
	}

	var swept map[string]int64
	_ = json.Unmarshal(execute(t, open, "sweep"), &swept)
	if swept["removed"] != 0 {
		t.Fatalf("nothing should be old enough to evict: %+v", swept)
	}
	if *closed != 5 {
		t.Fatalf("expected every command to release its service, got %d", *closed)
	}
}

func TestRecent_RejectsBadLimit(t *testing.T) {
	open, _ := newOpener(t)
	root := cli.NewRoot(open, &bytes.Buffer{})
	root.SetArgs([]string{"recent", "--limit", "500"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for limit 500")
	}
}
