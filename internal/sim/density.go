// Crowd density accumulation: per-tile occupancy counts collected every
// tick and flushed to the navigation cost model as arrival rates on a
// fixed window.
//
// Flat preallocated arrays with integer tile ids (not maps) keep the
// per-tick path allocation-free.
package sim

import "math"

// densityZeroRuns is how many consecutive zero-rate flushes a tile stays
// reported after emptying. The cost model smooths density with an EMA,
// so a single zero sample does not clear it; repeated zeros decay it to
// noise level before the tile is dropped from the active list.
const densityZeroRuns = 24

// DensityGrid accumulates agent positions between flushes. Observe is
// called once per agent per tick; Flush converts counts to rates
// (average concurrent agents per tile over the window).
type DensityGrid struct {
	windowTicks int
	tickCount   int

	counts   []float32
	listed   []bool
	zeroRuns []uint8
	active   []int32

	outTiles []int32
	outRates []float32
}

// NewDensityGrid sizes the grid for tileCount tiles, flushing every
// windowTicks ticks.
func NewDensityGrid(tileCount, windowTicks int) *DensityGrid {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &DensityGrid{
		windowTicks: windowTicks,
		counts:      make([]float32, tileCount),
		listed:      make([]bool, tileCount),
		zeroRuns:    make([]uint8, tileCount),
		active:      make([]int32, 0, 256),
		outTiles:    make([]int32, 0, 256),
		outRates:    make([]float32, 0, 256),
	}
}

// Observe counts one agent standing on a tile this tick.
func (d *DensityGrid) Observe(tile int32) {
	if tile < 0 || int(tile) >= len(d.counts) {
		return
	}
	d.counts[tile]++
	if !d.listed[tile] {
		d.listed[tile] = true
		d.zeroRuns[tile] = 0
		d.active = append(d.active, tile)
	}
}

// Tick advances the window. Returns true when a flush is due.
func (d *DensityGrid) Tick() bool {
	d.tickCount++
	return d.tickCount >= d.windowTicks
}

// Flush converts accumulated counts into per-tile rates and resets the
// window. Tiles that emptied keep reporting zero for a few windows so
// the cost model's smoothed density decays, then drop off the active
// list. The returned slices are reused by the next call.
func (d *DensityGrid) Flush() (tiles []int32, rates []float32) {
	d.outTiles = d.outTiles[:0]
	d.outRates = d.outRates[:0]

	window := float32(d.tickCount)
	if window <= 0 {
		window = 1
	}

	n := 0
	for _, tile := range d.active {
		rate := d.counts[tile] / window
		d.outTiles = append(d.outTiles, tile)
		d.outRates = append(d.outRates, rate)
		d.counts[tile] = 0

		if rate > 0 {
			d.zeroRuns[tile] = 0
		} else {
			d.zeroRuns[tile]++
		}
		if d.zeroRuns[tile] < densityZeroRuns {
			d.active[n] = tile
			n++
		} else {
			d.listed[tile] = false
		}
	}
	d.active = d.active[:n]
	d.tickCount = 0

	return d.outTiles, d.outRates
}

// ActiveTiles returns the number of tiles currently tracked.
func (d *DensityGrid) ActiveTiles() int {
	return len(d.active)
}

// PeakRate returns the highest rate in the last flush, for stats.
func (d *DensityGrid) PeakRate() float32 {
	var peak float32
	for _, r := range d.outRates {
		peak = float32(math.Max(float64(peak), float64(r)))
	}
	return peak
}
