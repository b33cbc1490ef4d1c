package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/history"
)

// dateOnlyLayout is accepted for start_time and end_time alongside RFC3339.
const dateOnlyLayout = "2006-01-02"

// listFunc is one of the history.Repository list operations.
type listFunc[T any] func(ctx context.Context, f history.Filter) (*history.ListResult[T], error)

// listHandler serves a paginated history listing.
//
// Query parameters: start_time, end_time (RFC3339, date or Unix seconds),
// order (asc|desc), limit and offset.
func listHandler[T any](s *Server, list listFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseHistoryFilter(r)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}

		result, err := list(r.Context(), filter)
		if err != nil {
			if errors.Is(err, history.ErrInvalidFilter) {
				writeBadRequest(w, strings.TrimPrefix(err.Error(), "history: invalid filter: "))
				return
			}
			s.logger.Error("history query failed", "path", r.URL.Path, "error", err)
			writeInternalError(w, "failed to query history")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// parseHistoryFilter builds a filter from the query string. Range and order
// checks are left to the repository.
func parseHistoryFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	var f history.Filter
	var err error

	if f.Start, err = parseTimeParam(q.Get("start_time")); err != nil {
		return f, fmt.Errorf("invalid start_time")
	}
	if f.End, err = parseTimeParam(q.Get("end_time")); err != nil {
		return f, fmt.Errorf("invalid end_time")
	}
	f.Order = strings.ToLower(strings.TrimSpace(q.Get("order")))

	if f.Limit, err = parseHistoryLimit(q.Get("limit")); err != nil {
		return f, err
	}
	if raw := q.Get("offset"); raw != "" {
		f.Offset, err = strconv.Atoi(raw)
		if err != nil || f.Offset < 0 {
			return f, fmt.Errorf("invalid offset")
		}
	}
	return f, nil
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > history.MaxLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", history.MaxLimit)
	}

	return limit, nil
}

// parseTimeParam parses an RFC3339 timestamp, a bare date or Unix seconds.
// An empty value yields the zero time, leaving that side of the range open.
func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, raw); err == nil {
		return parsed.UTC(), nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	sec, frac := math.Modf(value)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
}
