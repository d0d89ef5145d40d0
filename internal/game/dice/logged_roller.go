package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged draws.
// Every draw is logged at debug level with its label and result.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that draws from src and logs each draw to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Percent draws a uniform value in [0, 100) and logs it under label.
//
// Postcondition: 0 <= result < 100.
func (r *Roller) Percent(label string) float64 {
	v := Percent(r.src)
	r.logger.Debug("percent draw",
		zap.String("draw", label),
		zap.Float64("value", v),
	)
	return v
}

// Chance draws once and reports whether the draw lands below pct.
//
// Postcondition: result logged with the threshold.
func (r *Roller) Chance(label string, pct float64) bool {
	v := Percent(r.src)
	hit := v < pct
	r.logger.Debug("chance draw",
		zap.String("draw", label),
		zap.Float64("value", v),
		zap.Float64("threshold", pct),
		zap.Bool("hit", hit),
	)
	return hit
}

// Intn draws a uniform index in [0, n) and logs it under label.
//
// Precondition: n > 0.
func (r *Roller) Intn(label string, n int) int {
	v := r.src.Intn(n)
	r.logger.Debug("index draw",
		zap.String("draw", label),
		zap.Int("n", n),
		zap.Int("value", v),
	)
	return v
}
