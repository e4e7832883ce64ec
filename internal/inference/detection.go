package inference

// Keypoint is a single tracked landmark in pixel coordinates. Y grows
// downward, so a rising hip has a decreasing Y value.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Box is a detected object's vertical extent in pixel rows.
type Box struct {
	Top        float64 `json:"top"`
	Bottom     float64 `json:"bottom"`
	Confidence float64 `json:"confidence"`
}

// Detection carries the per-frame landmarks and object boxes produced by the
// vision sidecar. Keypoints and boxes below the configured confidence
// threshold are nil.
type Detection struct {
	Frame     int64
	Timestamp float64
	Hip       *Keypoint
	Elbow     *Keypoint
	Shoulder  *Keypoint
	Bench     *Box
	Bar       *Box
}

// VideoInfo describes the input clip as reported by the sidecar header.
type VideoInfo struct {
	TotalFrames     int64   `json:"total_frames"`
	FPS             float64 `json:"fps"`
	DurationSeconds float64 `json:"duration"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

// Source yields detections for consecutive frames of a single video.
type Source interface {
	// Info returns the clip metadata announced before the first frame.
	Info() VideoInfo
	// Next returns the next frame's detection. It returns io.EOF once the
	// stream is drained.
	Next() (Detection, error)
	// Close releases the underlying stream.
	Close() error
}
