package sim

import (
	"math"
	"math/rand"
	"time"

	"handover-sim/internal/telemetry"
)

// step is one sampling point along a segment and the pause before sampling.
type step struct {
	Pos   telemetry.Position
	Pause time.Duration
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func distance(a, b telemetry.Position) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func lerp(a, b telemetry.Position, t float64) telemetry.Position {
	return telemetry.Position{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// discreteSteps jumps straight to the waypoint.
func discreteSteps(to telemetry.Position, wait float64) []step {
	return []step{{Pos: to, Pause: seconds(wait)}}
}

// ContinuousStepCount returns ceil((distance/speed)/interval), at least 1.
func ContinuousStepCount(dist, speed, interval float64) int {
	// The epsilon keeps exact multiples such as 10/2/0.1 from rounding up.
	n := int(math.Ceil((dist/speed)/interval - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// continuousSteps subdivides the segment into equally spaced points.
func continuousSteps(from, to telemetry.Position, speed, interval float64) []step {
	n := ContinuousStepCount(distance(from, to), speed, interval)
	steps := make([]step, 0, n)
	for k := 1; k <= n; k++ {
		pos := lerp(from, to, float64(k)/float64(n))
		if k == n {
			pos = to
		}
		steps = append(steps, step{Pos: pos, Pause: seconds(interval)})
	}
	return steps
}

// RandomWalkPointCount returns max(3, floor(distance/5)).
func RandomWalkPointCount(dist float64) int {
	m := int(dist / 5)
	if m < 3 {
		m = 3
	}
	return m
}

// randomWalkSteps visits jittered intermediate points, then the waypoint.
func randomWalkSteps(from, to telemetry.Position, jitter, interval float64, rng *rand.Rand) []step {
	m := RandomWalkPointCount(distance(from, to))
	steps := make([]step, 0, m+1)
	for i := 1; i <= m; i++ {
		p := lerp(from, to, float64(i)/float64(m+1))
		p.X += (rng.Float64()*2 - 1) * jitter
		p.Y += (rng.Float64()*2 - 1) * jitter
		steps = append(steps, step{Pos: p, Pause: seconds(interval)})
	}
	return append(steps, step{Pos: to, Pause: seconds(interval)})
}
