// Package analysis turns a stream of frame detections into a bench-press
// form verdict. The classifier establishes a resting hip-bench baseline,
// tracks the bar through rep phases with hysteresis, and accumulates sticky
// hip-lift and shallow-rep failure flags.
package analysis
