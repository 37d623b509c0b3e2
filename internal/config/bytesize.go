package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing.
// It extends standard integer sizes with support for units like KB, MB, GB.
//
// Examples:
//   - "5MB" = 5 * 1024 * 1024 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "500KB" = 500 * 1024 bytes
//   - "5242880" = 5242880 bytes (raw number still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type ByteSize int64

// Binary unit multipliers.
const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
	tib = 1 << 40
)

var byteUnits = map[string]float64{
	"":   1,
	"b":  1,
	"k":  kib,
	"kb": kib,
	"m":  mib,
	"mb": mib,
	"g":  gib,
	"gb": gib,
	"t":  tib,
	"tb": tib,
}

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	// Split the numeric prefix from the unit suffix.
	i := 0
	for i < len(trimmed) && (trimmed[i] >= '0' && trimmed[i] <= '9' || trimmed[i] == '.' || trimmed[i] == '-') {
		i++
	}
	numPart := trimmed[:i]
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[i:]))

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("byte size must not be negative: %q", s)
	}

	mult, ok := byteUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("invalid byte size unit %q", unitPart)
	}

	return ByteSize(value * mult), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a number (bytes) for backwards compatibility.
		var raw int64
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*b = ByteSize(raw)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes as int64.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// String returns a human-readable string representation, using the largest
// unit that divides the value evenly, falling back to one decimal place.
func (b ByteSize) String() string {
	v := int64(b)
	switch {
	case v >= tib && v%tib == 0:
		return fmt.Sprintf("%dTB", v/tib)
	case v >= gib && v%gib == 0:
		return fmt.Sprintf("%dGB", v/gib)
	case v >= mib && v%mib == 0:
		return fmt.Sprintf("%dMB", v/mib)
	case v >= kib && v%kib == 0:
		return fmt.Sprintf("%dKB", v/kib)
	case v >= mib:
		return fmt.Sprintf("%.1fMB", float64(v)/mib)
	default:
		return strconv.FormatInt(v, 10)
	}
}
