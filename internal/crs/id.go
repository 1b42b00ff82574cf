// Package crs parses coordinate reference system identifiers and builds
// coordinate transforms between them.
package crs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownCRS is returned for identifiers that cannot be parsed or are not registered.
	ErrUnknownCRS = errors.New("unknown crs")

	// ErrMissingGrid is returned when a vertical datum conversion needs a grid that is not available.
	ErrMissingGrid = errors.New("missing vertical shift grid")

	// ErrOutOfDomain is returned when a coordinate cannot be expressed in the target CRS.
	ErrOutOfDomain = errors.New("coordinate outside projection domain")
)

// AuthorityEPSG is the only authority known to the registry.
const AuthorityEPSG = "EPSG"

// ID identifies a CRS by authority and code, optionally combined with a
// vertical datum code (compound CRS, e.g. EPSG:4326+3855).
type ID struct {
	Authority string
	Code      int
	// Vertical is the vertical CRS code, 0 means ellipsoidal heights.
	Vertical int
}

// WGS84 is the default CRS for GeoJSON and lon/lat data.
var WGS84 = ID{Authority: AuthorityEPSG, Code: 4326}

// WebMercator is the CRS of web map tiles.
var WebMercator = ID{Authority: AuthorityEPSG, Code: 3857}

// EPSG returns the ID for an EPSG code.
func EPSG(code int) ID {
	return ID{Authority: AuthorityEPSG, Code: code}
}

// Parse reads identifiers like "EPSG:4326", "epsg:3857", "32633",
// "urn:ogc:def:crs:EPSG::3857", "OGC:CRS84" and "EPSG:4326+3855".
func Parse(s string) (ID, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ID{}, fmt.Errorf("%w: empty identifier", ErrUnknownCRS)
	}

	upper := strings.ToUpper(raw)
	switch upper {
	case "CRS84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:OGC::CRS84":
		return WGS84, nil
	}

	// urn:ogc:def:crs:EPSG:<version>:<code>
	if strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:") {
		parts := strings.Split(upper, ":")
		upper = "EPSG:" + parts[len(parts)-1]
	}

	body := upper
	if i := strings.Index(upper, ":"); i >= 0 {
		if upper[:i] != AuthorityEPSG {
			return ID{}, fmt.Errorf("%w: authority %q", ErrUnknownCRS, raw[:i])
		}
		body = upper[i+1:]
	}

	var vertical int
	if i := strings.Index(body, "+"); i >= 0 {
		v, err := strconv.Atoi(body[i+1:])
		if err != nil || v <= 0 {
			return ID{}, fmt.Errorf("%w: vertical code in %q", ErrUnknownCRS, raw)
		}
		vertical = v
		body = body[:i]
	}

	code, err := strconv.Atoi(body)
	if err != nil || code <= 0 {
		return ID{}, fmt.Errorf("%w: %q", ErrUnknownCRS, raw)
	}

	return ID{Authority: AuthorityEPSG, Code: code, Vertical: vertical}, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical "EPSG:code[+vertical]" form.
func (id ID) String() string {
	if id.Code == 0 {
		return ""
	}
	auth := id.Authority
	if auth == "" {
		auth = AuthorityEPSG
	}
	if id.Vertical != 0 {
		return fmt.Sprintf("%s:%d+%d", auth, id.Code, id.Vertical)
	}
	return fmt.Sprintf("%s:%d", auth, id.Code)
}

// URN returns the OGC URN form used by the legacy GeoJSON "crs" member.
func (id ID) URN() string {
	return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", id.Code)
}

// Horizontal drops the vertical component.
func (id ID) Horizontal() ID {
	return ID{Authority: id.Authority, Code: id.Code}
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Code == 0
}

// Equal compares IDs ignoring authority spelling.
func (id ID) Equal(other ID) bool {
	return id.Code == other.Code && id.Vertical == other.Vertical
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
