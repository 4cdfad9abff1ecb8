// Package hydro decides river and lake presence per point without storing any
// river graph. Every answer is recomputed from the field sampler alone, so a
// point evaluated in any chunk reaches the same conclusion.
package hydro

import (
	"errors"
	"fmt"
	"sort"

	"civforge.ai/internal/sim/world/logic/mathx"
	"civforge.ai/internal/sim/world/terrain/fields"
)

// Terrain is the read-only view the tracer walks over. Traces step across
// Drainage; thresholds are judged on Elevation and Fields.
type Terrain interface {
	Elevation(x, y int) float64
	Drainage(x, y int) float64
	Fields(x, y int) fields.Values
}

// DownstreamCache is an optional Terrain extension that memoizes Downhill.
type DownstreamCache interface {
	Downstream(x, y int) (Point, bool)
}

type Params struct {
	MaxTraceSteps    int     `yaml:"max_trace_steps" json:"max_trace_steps"`
	MaxFlowSteps     int     `yaml:"max_flow_steps" json:"max_flow_steps"`
	MaxUphillStep    float64 `yaml:"max_uphill_step" json:"max_uphill_step"`
	FlowEpsilon      float64 `yaml:"flow_epsilon" json:"flow_epsilon"`
	SourceAcceptance float64 `yaml:"source_acceptance" json:"source_acceptance"`
	LakeAcceptance   float64 `yaml:"lake_acceptance" json:"lake_acceptance"`
}

func DefaultParams() Params {
	return Params{
		MaxTraceSteps:    256,
		MaxFlowSteps:     512,
		MaxUphillStep:    0.05,
		FlowEpsilon:      0.01,
		SourceAcceptance: 0.005,
		LakeAcceptance:   0.5,
	}
}

var ErrBadParams = errors.New("invalid hydrology params")

func (p Params) Validate() error {
	switch {
	case p.MaxTraceSteps <= 0 || p.MaxFlowSteps <= 0:
		return fmt.Errorf("%w: step bounds must be > 0", ErrBadParams)
	case p.MaxUphillStep <= 0 || p.MaxUphillStep > 1:
		return fmt.Errorf("%w: max_uphill_step must be in (0,1]", ErrBadParams)
	case p.FlowEpsilon < 0 || p.FlowEpsilon > 1:
		return fmt.Errorf("%w: flow_epsilon must be in [0,1]", ErrBadParams)
	case p.SourceAcceptance < 0 || p.SourceAcceptance > 1:
		return fmt.Errorf("%w: source_acceptance must be in [0,1]", ErrBadParams)
	case p.LakeAcceptance < 0 || p.LakeAcceptance > 1:
		return fmt.Errorf("%w: lake_acceptance must be in [0,1]", ErrBadParams)
	}
	return nil
}

const (
	sourceMinElevation = 0.6
	sourceMinMoisture  = 0.55
	lakeMaxElevation   = 0.5
	lakeMinMoisture    = 0.65
)

const (
	saltSource uint32 = 0x5011
	saltLake   uint32 = 0x1a4e
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Reason string

const (
	ReasonSource    Reason = "source"
	ReasonWater     Reason = "water"
	ReasonLake      Reason = "lake"
	ReasonNoUphill  Reason = "no_uphill"
	ReasonLocalMin  Reason = "local_minimum"
	ReasonExhausted Reason = "exhausted"
)

// Trace is the diagnostic result of one walk.
type Trace struct {
	OK     bool   `json:"ok"`
	Steps  int    `json:"steps"`
	End    Point  `json:"end"`
	Reason Reason `json:"reason"`
}

var neighbours8 = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
var neighbours4 = [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// Downhill returns the lowest 8-neighbour on the drainage surface, if it is
// strictly lower than (x,y). Ties go to the first neighbour in a fixed order.
func Downhill(t Terrain, x, y int) (Point, bool) {
	best := t.Drainage(x, y)
	next, found := Point{}, false
	for _, d := range neighbours8 {
		if ne := t.Drainage(x+d[0], y+d[1]); ne < best {
			next, best, found = Point{x + d[0], y + d[1]}, ne, true
		}
	}
	return next, found
}

// Tracer holds only seed-derived state and is safe for concurrent use as long as
// the underlying Terrain is.
type Tracer struct {
	t          Terrain
	down       DownstreamCache
	p          Params
	sourceSeed int64
	lakeSeed   int64
}

// NewTracer fills non-positive step bounds from DefaultParams.
func NewTracer(t Terrain, seed uint32, p Params) Tracer {
	def := DefaultParams()
	if p.MaxTraceSteps <= 0 {
		p.MaxTraceSteps = def.MaxTraceSteps
	}
	if p.MaxFlowSteps <= 0 {
		p.MaxFlowSteps = def.MaxFlowSteps
	}
	if p.MaxUphillStep <= 0 {
		p.MaxUphillStep = def.MaxUphillStep
	}
	down, _ := t.(DownstreamCache)
	return Tracer{
		t:          t,
		down:       down,
		p:          p,
		sourceSeed: int64(mathx.Derive(seed, saltSource)),
		lakeSeed:   int64(mathx.Derive(seed, saltLake)),
	}
}

func (tr Tracer) Params() Params { return tr.p }

func (tr Tracer) downhill(x, y int) (Point, bool) {
	if tr.down != nil {
		return tr.down.Downstream(x, y)
	}
	return Downhill(tr.t, x, y)
}

// HasRiver reports whether (x,y) lies on a river: its flow must reach the sea
// or a lake, and a source must be found upstream. v must be the fields at (x,y).
func (tr Tracer) HasRiver(x, y int, v fields.Values) bool {
	if v.Elevation < fields.SeaLevel {
		return false
	}
	if !tr.ForwardTrace(x, y).OK {
		return false
	}
	return tr.BackwardTrace(x, y).OK
}

// HasLake reports whether (x,y) is an accepted basin: a strict local minimum of
// the drainage surface on low, wet ground.
func (tr Tracer) HasLake(x, y int, v fields.Values) bool {
	e := v.Elevation
	if e < fields.SeaLevel || e >= lakeMaxElevation || v.Moisture <= lakeMinMoisture {
		return false
	}
	d := tr.t.Drainage(x, y)
	for _, n := range neighbours4 {
		if tr.t.Drainage(x+n[0], y+n[1]) <= d {
			return false
		}
	}
	return mathx.Unit(mathx.Hash2(tr.lakeSeed, x, y)) < tr.p.LakeAcceptance
}

func (tr Tracer) isSource(x, y int) bool {
	if tr.t.Elevation(x, y) <= sourceMinElevation {
		return false
	}
	if mathx.Unit(mathx.Hash2(tr.sourceSeed, x, y)) >= tr.p.SourceAcceptance {
		return false
	}
	return tr.t.Fields(x, y).Moisture > sourceMinMoisture
}

type upstream struct {
	p Point
	d float64
}

// BackwardTrace searches upstream of (x,y) for a river source. Only
// neighbours that drain into the current cell and rise at most MaxUphillStep
// are followed, closest-above first; dead ends backtrack. Steps counts the
// cells examined, at most MaxTraceSteps. Any source found lies on a path whose
// flow passes through (x,y).
func (tr Tracer) BackwardTrace(x, y int) Trace {
	start := Point{x, y}
	if tr.t.Elevation(x, y) < fields.SeaLevel {
		return Trace{End: start, Reason: ReasonWater}
	}
	visited := map[Point]struct{}{start: {}}
	stack := []Point{start}
	steps := 0
	var cand []upstream
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		steps++
		if tr.isSource(cur.X, cur.Y) {
			return Trace{OK: true, Steps: steps, End: cur, Reason: ReasonSource}
		}
		if steps >= tr.p.MaxTraceSteps {
			return Trace{Steps: steps, End: cur, Reason: ReasonExhausted}
		}

		d := tr.t.Drainage(cur.X, cur.Y)
		cand = cand[:0]
		for _, off := range neighbours8 {
			n := Point{cur.X + off[0], cur.Y + off[1]}
			if _, seen := visited[n]; seen {
				continue
			}
			nd := tr.t.Drainage(n.X, n.Y)
			if nd <= d || nd-d > tr.p.MaxUphillStep {
				continue
			}
			if down, ok := tr.downhill(n.X, n.Y); !ok || down != cur {
				continue
			}
			cand = append(cand, upstream{n, nd})
		}
		sort.SliceStable(cand, func(i, j int) bool { return cand[i].d < cand[j].d })
		// Push highest first so the closest-above neighbour is expanded next.
		for i := len(cand) - 1; i >= 0; i-- {
			visited[cand[i].p] = struct{}{}
			stack = append(stack, cand[i].p)
		}
	}
	return Trace{Steps: steps, End: start, Reason: ReasonNoUphill}
}

// ForwardTrace follows steepest descent over the drainage surface until it
// reaches water. Each step is strictly lower, so no cell is revisited. A local
// minimum only counts as success when it holds a lake.
func (tr Tracer) ForwardTrace(x, y int) Trace {
	cur := Point{x, y}
	outlet := fields.SeaLevel + tr.p.FlowEpsilon
	for step := 0; step <= tr.p.MaxFlowSteps; step++ {
		if tr.t.Elevation(cur.X, cur.Y) < outlet {
			return Trace{OK: true, Steps: step, End: cur, Reason: ReasonWater}
		}
		if step == tr.p.MaxFlowSteps {
			break
		}
		next, ok := tr.downhill(cur.X, cur.Y)
		if !ok {
			if tr.HasLake(cur.X, cur.Y, tr.t.Fields(cur.X, cur.Y)) {
				return Trace{OK: true, Steps: step, End: cur, Reason: ReasonLake}
			}
			return Trace{Steps: step, End: cur, Reason: ReasonLocalMin}
		}
		cur = next
	}
	return Trace{Steps: tr.p.MaxFlowSteps, End: cur, Reason: ReasonExhausted}
}
