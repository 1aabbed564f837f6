package framediff

// Frame-diff gate: suppresses redundant sends for emitters where every
// command has a cost (yeelight TCP, MQTT publishes, REST fallback).
// UDP-native emitters bypass the gate; resending is cheaper than diffing.

// Decision is the outcome of a gate check.
type Decision int

const (
	// Noop means both color and brightness are within tolerance.
	Noop Decision = iota
	// Bri means only brightness moved beyond tolerance.
	Bri
	// Color means chromaticity moved beyond tolerance.
	Color
)

// Tolerances are the per-session diff thresholds, derived once from the
// resource profile.
type Tolerances struct {
	Cie float64
	Bri int
}

// lastFrame is one light's diff cell.
type lastFrame struct {
	x, y float64
	bri  uint8
}

// Gate tracks the last applied color per light. Cells for the session's
// lights are created at session start, and Check adds a cell for any other
// light on first use; within a frame a cell is written by at most one
// worker, so no lock is taken on the hot path.
type Gate struct {
	tol  Tolerances
	last map[int]*lastFrame
}

// NewGate creates a gate with cells for the given light ids.
func NewGate(tol Tolerances, lightIDs []int) *Gate {
	last := make(map[int]*lastFrame, len(lightIDs))
	for _, id := range lightIDs {
		last[id] = &lastFrame{}
	}
	return &Gate{tol: tol, last: last}
}

// Check classifies the new (xy, bri) against the light's cell and updates
// the cell in place: a Color decision advances both xy and brightness, a
// Bri decision brightness only.
func (g *Gate) Check(lightID int, x, y float64, bri uint8) Decision {
	cell, ok := g.last[lightID]
	if !ok {
		cell = &lastFrame{}
		g.last[lightID] = cell
	}
	d, nx, ny, nbri := diff(cell.x, cell.y, cell.bri, x, y, bri, g.tol)
	switch d {
	case Color:
		// A color send carries the full state; both cells advance so an
		// identical follow-up frame is a no-op.
		cell.x, cell.y, cell.bri = nx, ny, nbri
	case Bri:
		cell.bri = nbri
	}
	return d
}

// diff is the pure decision function: it depends only on the previous cell
// values, the new sample and the tolerances.
func diff(px, py float64, pbri uint8, x, y float64, bri uint8, tol Tolerances) (Decision, float64, float64, uint8) {
	if abs(x-px) > tol.Cie || abs(y-py) > tol.Cie {
		return Color, x, y, bri
	}
	if absInt(int(bri)-int(pbri)) > tol.Bri {
		return Bri, x, y, bri
	}
	return Noop, x, y, bri
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
