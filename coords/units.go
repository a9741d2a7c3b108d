package coords

import "fmt"

type Unit string

const (
	UnitPoint Unit = "point"
	UnitPixel Unit = "pixel"
	UnitInch  Unit = "inch"
	UnitCM    Unit = "cm"
	UnitMM    Unit = "mm"
)

const DefaultDPI = 72.0

// pointsPer returns how many points one unit is worth at dpi.
func pointsPer(u Unit, dpi float64) (float64, error) {
	switch u {
	case UnitPoint:
		return 1, nil
	case UnitPixel:
		return 72 / dpi, nil
	case UnitInch:
		return 72, nil
	case UnitCM:
		return 72 / 2.54, nil
	case UnitMM:
		return 72 / 25.4, nil
	}
	return 0, fmt.Errorf("unknown unit %q", u)
}

// ConvertUnits converts v between units, always passing through points.
// A non-positive dpi means 72.
func ConvertUnits(v float64, from, to Unit, dpi float64) (float64, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	f, err := pointsPer(from, dpi)
	if err != nil {
		return 0, err
	}
	t, err := pointsPer(to, dpi)
	if err != nil {
		return 0, err
	}
	return v * f / t, nil
}
