package overlay

import (
	"fmt"
	"strings"

	"benchcheck/internal/analysis"
)

// ASS colors are &HBBGGRR& hex.
const (
	colorGreen  = "&H00FF00&"
	colorRed    = "&H0000FF&"
	colorYellow = "&H00FFFF&"
)

// Event is one span of the verdict timeline. End is exclusive; the last
// event runs to the clip end.
type Event struct {
	Start   float64
	End     float64
	Verdict analysis.Verdict
}

// Timeline compresses a per-frame verdict stream into spans of stable
// verdicts for the overlay.
type Timeline struct {
	events  []Event
	started bool
	current analysis.Verdict
	startAt float64
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Observe records the running verdict at the given timestamp. Consecutive
// identical verdicts collapse into one span.
func (t *Timeline) Observe(timestamp float64, verdict analysis.Verdict) {
	if !t.started {
		t.started = true
		t.current = verdict
		t.startAt = timestamp
		return
	}
	if verdict == t.current {
		return
	}
	t.events = append(t.events, Event{Start: t.startAt, End: timestamp, Verdict: t.current})
	t.current = verdict
	t.startAt = timestamp
}

// Finish closes the open span at the clip duration and returns all spans.
func (t *Timeline) Finish(duration float64) []Event {
	if !t.started {
		return nil
	}
	end := duration
	if end < t.startAt {
		end = t.startAt
	}
	return append(t.events, Event{Start: t.startAt, End: end, Verdict: t.current})
}

// Document describes the status panel burned into the output video.
type Document struct {
	Width  int
	Height int
	Events []Event
}

// Render produces the complete ASS subtitle document. The panel is three
// fixed lines in the top-left corner: overall verdict, hip lift status, and
// rep depth status, colored by outcome.
func (d Document) Render() string {
	width := d.Width
	height := d.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Script Info]\n")
	fmt.Fprintf(&b, "Title: benchcheck status panel\n")
	fmt.Fprintf(&b, "ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", width)
	fmt.Fprintf(&b, "PlayResY: %d\n\n", height)

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Outline, Shadow, Alignment, MarginL, MarginR, MarginV\n")
	fmt.Fprintf(&b, "Style: Panel,Arial,%d,&H00FFFFFF,&H00000000,&H80000000,1,2,0,7,20,20,20\n\n", panelFontSize(height))

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	lineHeight := panelFontSize(height) + 8
	for _, event := range d.Events {
		start := assTime(event.Start)
		end := assTime(event.End)
		lines := panelLines(event.Verdict)
		for i, line := range lines {
			y := 20 + i*lineHeight
			fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Panel,,0,0,0,,{\\an7\\pos(20,%d)\\c%s}%s\n",
				start, end, y, line.color, line.text)
		}
	}
	return b.String()
}

type panelLine struct {
	text  string
	color string
}

func panelLines(verdict analysis.Verdict) []panelLine {
	return []panelLine{
		{text: "OVERALL: " + verdict.Overall, color: overallColor(verdict.Overall)},
		{text: "HIP LIFT: " + verdict.HipLiftStatus, color: statusColor(verdict.HipLiftStatus)},
		{text: "SHALLOW REP: " + verdict.ShallowRepStatus, color: statusColor(verdict.ShallowRepStatus)},
	}
}

func overallColor(status string) string {
	switch status {
	case analysis.StatusGoodRep:
		return colorGreen
	case analysis.StatusEgoLift:
		return colorRed
	default:
		return colorYellow
	}
}

func statusColor(status string) string {
	switch status {
	case analysis.StatusOK:
		return colorGreen
	case analysis.StatusNoData:
		return colorYellow
	default:
		return colorRed
	}
}

func panelFontSize(height int) int {
	size := height / 24
	if size < 18 {
		size = 18
	}
	return size
}

// assTime renders seconds as the H:MM:SS.cc timestamps ASS expects.
func assTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int(seconds*100 + 0.5)
	h := centis / 360000
	centis -= h * 360000
	m := centis / 6000
	centis -= m * 6000
	s := centis / 100
	cs := centis % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
