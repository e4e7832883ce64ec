// Package inference streams per-frame bench, bar, and pose detections from
// the benchvision sidecar over a line-delimited JSON protocol.
package inference
