package hydro

import (
	"testing"

	"civforge.ai/internal/sim/world/terrain/fields"
)

// fakeTerrain is an analytic surface with constant moisture.
type fakeTerrain struct {
	elev     func(x, y int) float64
	moisture float64
}

func (f fakeTerrain) Elevation(x, y int) float64 { return f.elev(x, y) }
func (f fakeTerrain) Drainage(x, y int) float64  { return f.elev(x, y) }

func (f fakeTerrain) Fields(x, y int) fields.Values {
	return fields.Values{Elevation: f.elev(x, y), Temperature: 0.5, Moisture: f.moisture}
}

func acceptAll() Params {
	p := DefaultParams()
	p.SourceAcceptance = 1
	p.LakeAcceptance = 1
	return p
}

func slope() fakeTerrain {
	return fakeTerrain{
		elev:     func(x, _ int) float64 { return 0.2 + 0.004*float64(x) },
		moisture: 0.7,
	}
}

func TestRiverOnSlope(t *testing.T) {
	tr := NewTracer(slope(), 42, acceptAll())

	back := tr.BackwardTrace(50, 0)
	if !back.OK || back.Reason != ReasonSource {
		t.Fatalf("backward trace: %+v", back)
	}
	s := slope()
	if s.Elevation(back.End.X, 0) <= 0.6 || s.Elevation(back.End.X-1, 0) > 0.6 {
		t.Fatalf("expected source at first column above 0.6, got %+v", back.End)
	}
	// Ties on the slope drain to (x-1,y+1), so the only upstream line is the diagonal.
	if back.End.Y != 50-back.End.X || back.Steps != back.End.X-50+1 {
		t.Fatalf("expected source on the upstream diagonal, got %+v", back)
	}
	if !flowsThrough(s, back.End, Point{50, 0}, 256) {
		t.Fatalf("flow from source %+v does not pass (50,0)", back.End)
	}

	fwd := tr.ForwardTrace(50, 0)
	if !fwd.OK || fwd.Reason != ReasonWater {
		t.Fatalf("forward trace: %+v", fwd)
	}
	if fwd.Steps != 18 {
		t.Fatalf("forward steps: got %d want 18", fwd.Steps)
	}

	if !tr.HasRiver(50, 0, tr.t.Fields(50, 0)) {
		t.Fatalf("expected river on slope")
	}
}

func TestNoRiverWhenSourceRejected(t *testing.T) {
	p := acceptAll()
	p.SourceAcceptance = 0
	tr := NewTracer(slope(), 42, p)
	if tr.HasRiver(50, 0, tr.t.Fields(50, 0)) {
		t.Fatalf("expected no river when every source draw is rejected")
	}
}

func TestNoRiverInOcean(t *testing.T) {
	tr := NewTracer(slope(), 42, acceptAll())
	if tr.HasRiver(0, 0, tr.t.Fields(0, 0)) {
		t.Fatalf("ocean cell must not be a river")
	}
}

func TestPlateauHasNoRiver(t *testing.T) {
	flat := fakeTerrain{elev: func(int, int) float64 { return 0.5 }, moisture: 0.9}
	tr := NewTracer(flat, 1, acceptAll())
	if got := tr.BackwardTrace(3, 3); got.OK || got.Reason != ReasonNoUphill || got.Steps != 1 {
		t.Fatalf("backward on plateau: %+v", got)
	}
	if got := tr.ForwardTrace(3, 3); got.OK || got.Reason != ReasonLocalMin {
		t.Fatalf("forward on plateau: %+v", got)
	}
}

// flowsThrough follows Downhill from p for at most n steps looking for target.
func flowsThrough(t Terrain, p, target Point, n int) bool {
	for i := 0; i <= n; i++ {
		if p == target {
			return true
		}
		next, ok := Downhill(t, p.X, p.Y)
		if !ok {
			return false
		}
		p = next
	}
	return false
}

func TestBackwardTraceFollowsOnlyContributors(t *testing.T) {
	// A valley along y=0 rising to the east. From the flank at (50,3) the
	// cells directly uphill drain toward the valley floor instead.
	valley := fakeTerrain{
		elev: func(x, y int) float64 {
			ay := y
			if ay < 0 {
				ay = -ay
			}
			return 0.305 + 0.004*float64(x) + 0.01*float64(ay)
		},
		moisture: 0.7,
	}
	if down, ok := Downhill(valley, 50, 4); !ok || down != (Point{49, 3}) {
		t.Fatalf("downhill of (50,4): %+v %v", down, ok)
	}
	tr := NewTracer(valley, 5, acceptAll())
	back := tr.BackwardTrace(50, 3)
	if !back.OK || back.End != (Point{55, 8}) || back.Steps != 6 {
		t.Fatalf("backward on valley flank: %+v", back)
	}
	if !flowsThrough(valley, back.End, Point{50, 3}, 64) {
		t.Fatalf("source %+v does not drain through (50,3)", back.End)
	}

	p := acceptAll()
	p.MaxUphillStep = 0.01
	if got := NewTracer(valley, 5, p).BackwardTrace(50, 3); got.OK || got.Reason != ReasonNoUphill {
		t.Fatalf("steps of 0.014 must exceed max_uphill_step 0.01: %+v", got)
	}
}

func bowl() fakeTerrain {
	return fakeTerrain{
		elev:     func(x, y int) float64 { return 0.4 + 0.001*float64(x*x+y*y) },
		moisture: 0.7,
	}
}

func TestLakeAtBasin(t *testing.T) {
	tr := NewTracer(bowl(), 9, acceptAll())
	if !tr.HasLake(0, 0, tr.t.Fields(0, 0)) {
		t.Fatalf("expected lake at bowl bottom")
	}
	if tr.HasLake(1, 0, tr.t.Fields(1, 0)) {
		t.Fatalf("slope of the bowl is not a lake")
	}

	fwd := tr.ForwardTrace(3, 0)
	if !fwd.OK || fwd.Reason != ReasonLake || fwd.End != (Point{0, 0}) || fwd.Steps != 3 {
		t.Fatalf("forward into lake: %+v", fwd)
	}

	p := acceptAll()
	p.LakeAcceptance = 0
	if NewTracer(bowl(), 9, p).HasLake(0, 0, bowl().Fields(0, 0)) {
		t.Fatalf("expected lake rejected by acceptance draw")
	}
}

func TestLakeNeedsMoistureAndLowGround(t *testing.T) {
	dry := bowl()
	dry.moisture = 0.6
	tr := NewTracer(dry, 9, acceptAll())
	if tr.HasLake(0, 0, dry.Fields(0, 0)) {
		t.Fatalf("dry basin must not be a lake")
	}

	high := fakeTerrain{elev: func(x, y int) float64 { return 0.55 + 0.001*float64(x*x+y*y) }, moisture: 0.9}
	tr = NewTracer(high, 9, acceptAll())
	if tr.HasLake(0, 0, high.Fields(0, 0)) {
		t.Fatalf("basin above 0.5 must not be a lake")
	}
}

func TestBackwardTraceExhausts(t *testing.T) {
	// Gentle endless rise with no source moisture.
	ramp := fakeTerrain{elev: func(x, _ int) float64 { return 0.35 + 1e-6*float64(x) }, moisture: 0.1}
	p := acceptAll()
	p.MaxTraceSteps = 20
	tr := NewTracer(ramp, 3, p)
	got := tr.BackwardTrace(0, 0)
	if got.OK || got.Reason != ReasonExhausted || got.Steps != 20 {
		t.Fatalf("expected exhaustion after 20 steps, got %+v", got)
	}
}

func TestForwardTraceExhausts(t *testing.T) {
	ramp := fakeTerrain{elev: func(x, _ int) float64 { return 0.9 + 1e-6*float64(x) }, moisture: 0.1}
	p := acceptAll()
	p.MaxFlowSteps = 15
	tr := NewTracer(ramp, 3, p)
	got := tr.ForwardTrace(0, 0)
	if got.OK || got.Reason != ReasonExhausted || got.Steps != 15 {
		t.Fatalf("expected exhaustion after 15 steps, got %+v", got)
	}
}

func TestTracesTerminateOnRealTerrain(t *testing.T) {
	s := fields.New("fuzz-seed", 2048)
	tr := NewTracer(s, s.SeedHash(), DefaultParams())
	p := tr.Params()

	pts := [][2]int{
		{0, 0}, {1, -1}, {-1, 1}, {-1, -1},
		{1024, 1024}, {1023, 1025}, {700, 1300},
		{1_000_000, -1_000_000}, {-1_000_000, 1_000_000},
		{1 << 30, 1 << 30}, {-(1 << 30), -(1 << 30)}, {(1 << 30) - 1, -(1 << 30) + 1},
		{-37, -4099}, {-128, -129},
	}
	for i := 0; i < 64; i++ {
		pts = append(pts, [2]int{600 + i*13, 900 - i*7})
	}
	for _, pt := range pts {
		back := tr.BackwardTrace(pt[0], pt[1])
		if back.Steps < 0 || back.Steps > p.MaxTraceSteps {
			t.Fatalf("backward trace at %v ran %d steps", pt, back.Steps)
		}
		fwd := tr.ForwardTrace(pt[0], pt[1])
		if fwd.Steps < 0 || fwd.Steps > p.MaxFlowSteps {
			t.Fatalf("forward trace at %v ran %d steps", pt, fwd.Steps)
		}
		v := s.Fields(pt[0], pt[1])
		if got, again := tr.HasRiver(pt[0], pt[1], v), tr.HasRiver(pt[0], pt[1], v); got != again {
			t.Fatalf("HasRiver not deterministic at %v", pt)
		}
		_ = tr.HasLake(pt[0], pt[1], v)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := DefaultParams()
	bad.LakeAcceptance = 1.5
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for lake_acceptance > 1")
	}
	bad = DefaultParams()
	bad.MaxFlowSteps = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero flow steps")
	}
}
