package gps

import (
	"strconv"
	"strings"
)

// Status tags a Fix.
type Status int

const (
	// Valid is a decoded, range-checked position.
	Valid Status = iota
	// NoFixYet covers both "still searching" and "reply rejected". Callers
	// must not try to tell the two apart.
	NoFixYet
)

// String returns the status name used in logs.
func (s Status) String() string {
	if s == NoFixYet {
		return "no_fix_yet"
	}
	return "valid"
}

// Fix is one GPS sample. Speed is the receiver's ground speed.
//
// Its JSON form carries only the four numeric fields; a NoFixYet fix always
// encodes as null island.
type Fix struct {
	Status    Status  `json:"-"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float32 `json:"altitude"`
	Speed     float32 `json:"gps_speed"`
}

// NullIsland returns the (0,0,0,0) sentinel tagged NoFixYet.
func NullIsland() Fix {
	return Fix{Status: NoFixYet}
}

// IsNullIsland reports whether every coordinate is zero.
func (f Fix) IsNullIsland() bool {
	return f.Latitude == 0 && f.Longitude == 0 && f.Altitude == 0 && f.Speed == 0
}

// MarshalJSON writes the fix with every number in decimal notation, so
// null island reads {"latitude":0.0,"longitude":0.0,"altitude":0.0,"gps_speed":0.0}.
func (f Fix) MarshalJSON() ([]byte, error) {
	if f.Status == NoFixYet {
		f = Fix{}
	}
	var b strings.Builder
	b.WriteString(`{"latitude":`)
	b.WriteString(formatFloat(f.Latitude, 64))
	b.WriteString(`,"longitude":`)
	b.WriteString(formatFloat(f.Longitude, 64))
	b.WriteString(`,"altitude":`)
	b.WriteString(formatFloat(float64(f.Altitude), 32))
	b.WriteString(`,"gps_speed":`)
	b.WriteString(formatFloat(float64(f.Speed), 32))
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// formatFloat renders the shortest decimal form of v, always with a
// fractional part.
func formatFloat(v float64, bitSize int) string {
	s := strconv.FormatFloat(v, 'f', -1, bitSize)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
