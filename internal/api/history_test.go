package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/history"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"

	_ "github.com/nerrad567/scooter-telemetry/migrations" // registers the embedded schema
)

// fakeHistory records the filter it was asked for and returns err when set.
type fakeHistory struct {
	filter history.Filter
	err    error
}

func (f *fakeHistory) Insert(_ context.Context, _ telemetry.Snapshot) error { return nil }

func (f *fakeHistory) ListEntries(_ context.Context, filter history.Filter) (*history.ListResult[history.Entry], error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &history.ListResult[history.Entry]{Items: []history.Entry{}, Limit: filter.Limit}, nil
}

func (f *fakeHistory) ListGeneral(_ context.Context, filter history.Filter) (*history.ListResult[history.General], error) {
	f.filter = filter
	return &history.ListResult[history.General]{Items: []history.General{}}, f.err
}

func (f *fakeHistory) ListBattery(_ context.Context, filter history.Filter) (*history.ListResult[history.Battery], error) {
	f.filter = filter
	return &history.ListResult[history.Battery]{Items: []history.Battery{}}, f.err
}

func (f *fakeHistory) ListLocation(_ context.Context, filter history.Filter) (*history.ListResult[history.Location], error) {
	f.filter = filter
	return &history.ListResult[history.Location]{Items: []history.Location{}}, f.err
}

func TestParseTimeParam(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{name: "empty", raw: "", want: time.Time{}},
		{name: "rfc3339 offset", raw: "2024-07-15T16:20:16+02:00", want: time.Date(2024, 7, 15, 14, 20, 16, 0, time.UTC)},
		{name: "rfc3339 nano", raw: "2024-07-15T14:20:16.5Z", want: time.Date(2024, 7, 15, 14, 20, 16, 500000000, time.UTC)},
		{name: "date only", raw: "2024-07-15", want: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)},
		{name: "unix seconds", raw: "1721053216", want: time.Date(2024, 7, 15, 14, 20, 16, 0, time.UTC)},
		{name: "garbage", raw: "yesterday", wantErr: true},
		{name: "nan", raw: "NaN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimeParam(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseTimeParam(%q) error = nil, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTimeParam(%q) error = %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimeParam(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestListHandler_QueryParsing(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantFilter history.Filter
	}{
		{
			name:       "defaults",
			query:      "",
			wantCode:   http.StatusOK,
			wantFilter: history.Filter{Limit: history.DefaultLimit},
		},
		{
			name:     "full filter",
			query:    "?start_time=2024-07-15T00:00:00Z&end_time=2024-07-16&order=DESC&limit=10&offset=20",
			wantCode: http.StatusOK,
			wantFilter: history.Filter{
				Start:  time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
				End:    time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC),
				Order:  history.OrderDesc,
				Limit:  10,
				Offset: 20,
			},
		},
		{name: "bad start", query: "?start_time=soon", wantCode: http.StatusBadRequest},
		{name: "bad end", query: "?end_time=later", wantCode: http.StatusBadRequest},
		{name: "zero limit", query: "?limit=0", wantCode: http.StatusBadRequest},
		{name: "limit over maximum", query: "?limit=501", wantCode: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeHistory{}
			srv := testServer(t, func(d *Deps) { d.History = repo })

			w := get(t, srv, "/api/v1/data/general"+tt.query)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				var resp Error
				decodeBody(t, w, &resp)
				if resp.Code != ErrCodeBadRequest {
					t.Errorf("code = %q, want %q", resp.Code, ErrCodeBadRequest)
				}
				return
			}
			got := repo.filter
			if !got.Start.Equal(tt.wantFilter.Start) || !got.End.Equal(tt.wantFilter.End) ||
				got.Order != tt.wantFilter.Order || got.Limit != tt.wantFilter.Limit || got.Offset != tt.wantFilter.Offset {
				t.Errorf("filter = %+v, want %+v", got, tt.wantFilter)
			}
		})
	}
}

func TestListHandler_RepositoryErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "invalid filter", err: fmt.Errorf("%w: start_time is after end_time", history.ErrInvalidFilter), wantCode: http.StatusBadRequest},
		{name: "storage failure", err: errors.New("disk I/O error"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, func(d *Deps) { d.History = &fakeHistory{err: tt.err} })

			w := get(t, srv, "/api/v1/data")
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestListHandler_InvalidFilterMessage(t *testing.T) {
	srv := testServer(t, func(d *Deps) {
		d.History = &fakeHistory{err: fmt.Errorf("%w: start_time is after end_time", history.ErrInvalidFilter)}
	})

	var resp Error
	decodeBody(t, get(t, srv, "/api/v1/data/battery"), &resp)
	if resp.Message != "start_time is after end_time" {
		t.Errorf("message = %q, want %q", resp.Message, "start_time is after end_time")
	}
}

// ─── End to end over SQLite ────────────────────────────────────────

func seededHistory(t *testing.T) history.Repository {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	repo := history.NewSQLRepository(db)
	for i, ts := range []string{
		"2024-07-15T16:20:16+02:00",
		"2024-07-15T16:20:21+02:00",
		"2024-07-15T16:20:26+02:00",
	} {
		snap := telemetry.Snapshot{
			Timestamp: ts,
			SpeedKmh:  float32(10 + i),
			BatteryInfo: vehicle.BatteryInfo{
				Capacity: 7000,
				Percent:  uint16(80 - i),
				Voltage:  40,
				Current:  2.5,
			},
			GPS: gps.Fix{Status: gps.Valid, Latitude: 40.41, Longitude: -3.70},
		}
		if err := repo.Insert(context.Background(), snap); err != nil {
			t.Fatalf("Insert(%s) error: %v", ts, err)
		}
	}
	return repo
}

func TestListEntries_OverSQLite(t *testing.T) {
	srv := testServer(t, func(d *Deps) { d.History = seededHistory(t) })

	w := get(t, srv, "/api/v1/data?order=desc&limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp history.ListResult[history.Entry]
	decodeBody(t, w, &resp)
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].SpeedKmh != 12 {
		t.Errorf("first SpeedKmh = %v, want 12 (newest first)", resp.Items[0].SpeedKmh)
	}
	if resp.Items[0].Power != 100 {
		t.Errorf("Power = %v, want 100", resp.Items[0].Power)
	}
}

func TestListEntries_InvertedRangeOverSQLite(t *testing.T) {
	srv := testServer(t, func(d *Deps) { d.History = seededHistory(t) })

	w := get(t, srv, "/api/v1/data?start_time=2024-07-16&end_time=2024-07-15")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
