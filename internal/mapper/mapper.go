// Package mapper converts footprints into spatial index cells.
package mapper

import (
	"github.com/paulmach/orb"
)

type Interface interface {
	CellsForRing(ring orb.Ring, res int) ([]string, error)
	Cover(ring orb.Ring, res, maxCells int) (cells []string, usedRes int, err error)
}
