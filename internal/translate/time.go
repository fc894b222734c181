package translate

// TimeSettings is the immutable time snapshot for one read: the current
// frame, and the frame-relative shutter interval when motion blur is on.
type TimeSettings struct {
	Frame       float64
	MotionBlur  bool
	MotionStart float64
	MotionEnd   float64
}

// Start returns the absolute time of the shutter open.
func (t TimeSettings) Start() float64 {
	if t.MotionBlur {
		return t.Frame + t.MotionStart
	}
	return t.Frame
}

// End returns the absolute time of the shutter close.
func (t TimeSettings) End() float64 {
	if t.MotionBlur {
		return t.Frame + t.MotionEnd
	}
	return t.Frame
}
