// internal/gesture/path.go
package gesture

import (
	"math"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

// easeInOutCubic maps linear progress to an accelerate then decelerate curve.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// bezierPath samples a cubic Bezier curve from start to end. Control points sit
// at one and two thirds of the chord, pushed sideways by curvature times the
// chord length. Samples are spaced by easeInOutCubic so a platform that plays
// points at a constant rate produces a natural velocity profile. The first and
// last samples are exactly start and end.
func bezierPath(start, end schemas.Point, steps int, curvature float64) []schemas.Point {
	p0, p3 := fromPoint(start), fromPoint(end)
	chord := p3.Sub(p0)
	dist := chord.Mag()

	if dist < 1.0 || steps < 2 {
		return []schemas.Point{start, end}
	}

	dir := chord.Normalize()
	offset := dir.Perp().Mul(dist * curvature)
	p1 := p0.Add(dir.Mul(dist / 3.0)).Add(offset)
	p2 := p0.Add(dir.Mul(dist * 2.0 / 3.0)).Add(offset)

	path := make([]schemas.Point, steps)
	for i := 0; i < steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps-1))
		omt := 1.0 - t
		omt2 := omt * omt
		t2 := t * t

		p := p0.Mul(omt2 * omt).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t2 * t))
		path[i] = p.Point()
	}
	path[0], path[steps-1] = start, end
	return path
}
