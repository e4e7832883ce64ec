package analysis

import (
	"math"

	"benchcheck/internal/inference"
)

// Phase identifies where the classifier is in the rep cycle.
type Phase string

const (
	PhaseAwaitingBaseline Phase = "AWAITING_BASELINE"
	PhaseStart            Phase = "START"
	PhaseInProgress       Phase = "IN_PROGRESS"
	PhaseEnd              Phase = "END"
)

// Status strings surfaced in verdicts and persisted on jobs.
const (
	StatusOK               = "OK"
	StatusFailHipLift      = "FAIL: HIP LIFT"
	StatusFailElbowDepth   = "FAIL: ELBOW DEPTH"
	StatusGoodRep          = "GOOD REP"
	StatusEgoLift          = "EGO LIFT"
	StatusInsufficientData = "INSUFFICIENT DATA"
	StatusNoData           = "NO DATA"
)

// Verdict is the running form judgment. Failure flags are sticky: once a
// frame trips one it stays set for the rest of the video.
type Verdict struct {
	Overall            string
	HipLiftDetected    bool
	HipLiftStatus      string
	ShallowRepDetected bool
	ShallowRepStatus   string
	Reps               int
}

// Snapshot reports the classifier state after one observed frame.
type Snapshot struct {
	Phase   Phase
	Verdict Verdict
}

// Classifier consumes frame detections in order and accumulates a form
// verdict for a single video. It is not safe for concurrent use.
type Classifier struct {
	cfg Config

	hipSmooth   *window
	elbowSmooth *window

	baselineSamples int
	baselineSum     float64
	baselineGap     float64
	baselineReady   bool

	phase        Phase
	barLockout   float64
	elbowLockout float64

	repMinElbowGap float64
	repHasElbow    bool

	hipLift    bool
	shallowRep bool
	reps       int
}

// NewClassifier validates the config and returns a classifier awaiting its
// baseline.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:         cfg,
		hipSmooth:   newWindow(cfg.SmoothingWindow),
		elbowSmooth: newWindow(cfg.SmoothingWindow),
		phase:       PhaseAwaitingBaseline,
	}, nil
}

// Observe feeds one frame detection into the classifier and returns the
// resulting state. Frames must arrive in order.
func (c *Classifier) Observe(det inference.Detection) Snapshot {
	if !c.baselineReady {
		c.collectBaseline(det)
		return c.snapshot()
	}

	c.observeHip(det)
	c.observeRep(det)
	return c.snapshot()
}

// Verdict returns the current judgment. Before a baseline exists the video
// is unjudgeable and the verdict says so.
func (c *Classifier) Verdict() Verdict {
	if !c.baselineReady {
		return Verdict{
			Overall:          StatusInsufficientData,
			HipLiftStatus:    StatusNoData,
			ShallowRepStatus: StatusNoData,
		}
	}

	verdict := Verdict{
		HipLiftDetected:    c.hipLift,
		HipLiftStatus:      StatusOK,
		ShallowRepDetected: c.shallowRep,
		ShallowRepStatus:   StatusOK,
		Reps:               c.reps,
	}
	if c.hipLift {
		verdict.HipLiftStatus = StatusFailHipLift
	}
	if c.shallowRep {
		verdict.ShallowRepStatus = StatusFailElbowDepth
	}
	if c.hipLift || c.shallowRep {
		verdict.Overall = StatusEgoLift
	} else {
		verdict.Overall = StatusGoodRep
	}
	return verdict
}

// Phase exposes the current rep phase.
func (c *Classifier) Phase() Phase {
	return c.phase
}

func (c *Classifier) snapshot() Snapshot {
	return Snapshot{Phase: c.phase, Verdict: c.Verdict()}
}

// collectBaseline accumulates the resting hip-bench gap over consecutive
// usable frames. Any frame missing the hip or the bench restarts the run.
func (c *Classifier) collectBaseline(det inference.Detection) {
	if det.Hip == nil || det.Bench == nil {
		c.baselineSamples = 0
		c.baselineSum = 0
		return
	}
	c.baselineSum += benchGap(det.Hip.Y, det.Bench.Top)
	c.baselineSamples++
	if c.baselineSamples < c.cfg.BaselineFrames {
		return
	}

	c.baselineGap = c.baselineSum / float64(c.baselineSamples)
	c.baselineReady = true
	c.phase = PhaseStart
	c.repMinElbowGap = math.Inf(1)
}

func (c *Classifier) observeHip(det inference.Detection) {
	if det.Hip == nil {
		return
	}
	smoothedHip := c.hipSmooth.push(det.Hip.Y)
	if det.Bench == nil {
		return
	}
	gap := benchGap(smoothedHip, det.Bench.Top)
	if gap-c.baselineGap > c.cfg.HipLiftRatio*c.baselineGap {
		c.hipLift = true
	}
}

func (c *Classifier) observeRep(det inference.Detection) {
	var elbowGap float64
	haveElbow := det.Elbow != nil && det.Shoulder != nil
	if haveElbow {
		smoothedElbow := c.elbowSmooth.push(det.Elbow.Y)
		elbowGap = math.Abs(smoothedElbow - det.Shoulder.Y)
	}

	if det.Bar == nil || det.Shoulder == nil {
		// Without the bar the machine holds its phase; depth still tracks
		// inside a rep so a briefly occluded bar does not blind the check.
		if c.phase == PhaseInProgress && haveElbow && elbowGap < c.repMinElbowGap {
			c.repMinElbowGap = elbowGap
			c.repHasElbow = true
		}
		return
	}

	barGap := det.Shoulder.Y - det.Bar.Bottom

	switch c.phase {
	case PhaseStart, PhaseEnd:
		if barGap > c.barLockout {
			c.barLockout = barGap
		}
		if haveElbow && elbowGap > c.elbowLockout {
			c.elbowLockout = elbowGap
		}
		if barGap < c.barLockout-c.cfg.LockoutHysteresis {
			c.phase = PhaseInProgress
			c.repMinElbowGap = math.Inf(1)
			c.repHasElbow = false
		}
	case PhaseInProgress:
		if haveElbow && elbowGap < c.repMinElbowGap {
			c.repMinElbowGap = elbowGap
			c.repHasElbow = true
		}
		if barGap >= c.barLockout-c.cfg.LockoutHysteresis {
			c.finishRep()
		}
	}
}

// finishRep closes the active rep and judges its depth. A rep during which
// the elbow was never tracked, or before any lockout reference exists, is
// skipped rather than guessed at.
func (c *Classifier) finishRep() {
	c.phase = PhaseEnd
	c.reps++
	if !c.repHasElbow || c.elbowLockout <= 0 {
		return
	}
	if c.repMinElbowGap > c.cfg.ShallowRepRatio*c.elbowLockout {
		c.shallowRep = true
	}
}

// benchGap is the vertical distance between the hip landmark and the bench
// surface. Pixel rows grow downward, so a lifted hip increases the gap.
func benchGap(hipY, benchTop float64) float64 {
	return math.Abs(benchTop - hipY)
}
