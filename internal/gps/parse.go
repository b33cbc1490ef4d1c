package gps

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// infoMarker prefixes every AT+CGPSINFO reply payload.
	infoMarker = "+CGPSINFO: "

	// minInfoFields is the number of positional fields a usable reply carries
	// once the trailing segment is dropped.
	minInfoFields = 8

	latDegreeDigits = 2
	lonDegreeDigits = 3
)

// Field positions within a +CGPSINFO payload.
const (
	fieldLat = iota
	fieldLatHemisphere
	fieldLon
	fieldLonHemisphere
	fieldDate
	fieldTime
	fieldAltitude
	fieldSpeed
)

var (
	errTooFewFields  = errors.New("too few fields")
	errBadHemisphere = errors.New("missing or invalid hemisphere")
	errBadCoordinate = errors.New("unparsable coordinate")
	errBadNumber     = errors.New("unparsable numeric field")
	errOutOfRange    = errors.New("coordinates out of range")
)

// Parse decodes a raw AT+CGPSINFO reply. It never fails: any structural or
// range problem yields NullIsland.
func Parse(raw string) Fix {
	fix, _ := parse(raw) //nolint:errcheck // the reason only feeds debug logging
	return fix
}

// parse is Parse plus the reason a reply was rejected.
func parse(raw string) (Fix, error) {
	payload := stripEcho(raw)

	// The final comma-delimited segment is a trailing artifact (an empty
	// field followed by the final result code), never data.
	if i := strings.LastIndexByte(payload, ','); i >= 0 {
		payload = payload[:i]
	}

	fields := strings.Split(payload, ",")
	if len(fields) < minInfoFields {
		return NullIsland(), fmt.Errorf("%w: got %d", errTooFewFields, len(fields))
	}

	lat, err := degreesMinutes(fields[fieldLat], fields[fieldLatHemisphere], latDegreeDigits, "N", "S")
	if err != nil {
		return NullIsland(), fmt.Errorf("latitude: %w", err)
	}
	lon, err := degreesMinutes(fields[fieldLon], fields[fieldLonHemisphere], lonDegreeDigits, "E", "W")
	if err != nil {
		return NullIsland(), fmt.Errorf("longitude: %w", err)
	}

	altitude, err := parseFinite(fields[fieldAltitude])
	if err != nil {
		return NullIsland(), fmt.Errorf("altitude: %w", err)
	}
	speed, err := parseFinite(fields[fieldSpeed])
	if err != nil {
		return NullIsland(), fmt.Errorf("speed: %w", err)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return NullIsland(), fmt.Errorf("%w: %f,%f", errOutOfRange, lat, lon)
	}

	return Fix{
		Status:    Valid,
		Latitude:  lat,
		Longitude: lon,
		Altitude:  float32(altitude),
		Speed:     float32(speed),
	}, nil
}

// stripEcho drops everything up to and including the reply marker, which
// removes the command echo when the modem has echo enabled.
func stripEcho(raw string) string {
	if i := strings.Index(raw, infoMarker); i >= 0 {
		return raw[i+len(infoMarker):]
	}
	return raw
}

// isSearching reports whether the reply payload is only empty fields, which
// is what the receiver sends before its first satellite fix.
func isSearching(raw string) bool {
	payload := stripEcho(raw)
	if i := strings.IndexAny(payload, "\r\n"); i >= 0 {
		payload = payload[:i]
	}
	if !strings.Contains(payload, ",") {
		return false
	}
	for _, f := range strings.Split(payload, ",") {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// degreesMinutes converts DDMM.MMMM (or DDDMM.MMMM) to signed decimal degrees.
func degreesMinutes(value, hemisphere string, degreeDigits int, positive, negative string) (float64, error) {
	value = strings.TrimSpace(value)
	hemisphere = strings.TrimSpace(hemisphere)

	if hemisphere != positive && hemisphere != negative {
		return 0, errBadHemisphere
	}
	if len(value) <= degreeDigits {
		return 0, errBadCoordinate
	}

	degrees, err := strconv.ParseUint(value[:degreeDigits], 10, 16)
	if err != nil {
		return 0, errBadCoordinate
	}
	if !isDecimal(value[degreeDigits:]) {
		return 0, errBadCoordinate
	}
	minutes, err := strconv.ParseFloat(value[degreeDigits:], 64)
	if err != nil {
		return 0, errBadCoordinate
	}

	decimal := float64(degrees) + minutes/60
	if hemisphere == negative {
		decimal = -decimal
	}
	return decimal, nil
}

// isDecimal reports whether s is plain digits with at most one dot. It keeps
// signs, exponents, NaN and Inf out of the coordinate fields.
func isDecimal(s string) bool {
	if s == "" || s == "." {
		return false
	}
	dot := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '.' && !dot:
			dot = true
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// parseFinite parses an altitude or speed field as a float32 value.
// NaN, Inf and out-of-range values are rejected.
func parseFinite(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errBadNumber
	}
	return v, nil
}
