package audio

import "fmt"

// Estimator is the closed-loop frequency estimator (spec.md §4.13): a
// discrete-time PI controller mapping queue_depth_samples to a scaling
// coefficient applied as the resampler's multiplier. It targets
// aimQueueSize and saturates its output to a configured bounded interval
// around 1.0; the integrator itself is bounded so a long starvation (or
// overflow) can't wind it up past what the output clamp would ever use
// (anti-windup), grounded on roc_audio/scaler.cpp's read/update/
// queue_size_ loop, which feeds a freq-estimator update on every frame
// boundary and applies its freq_coeff to every attached resampler.
type Estimator struct {
	aimQueueSize float64
	kp, ki       float64
	maxDeviation float64

	integral float64
	coeff    float64
}

// Default PI gains: the proportional term moves freq_coeff by 2 parts
// per million per sample of queue-depth error, so typical jitter-buffer
// depth fluctuations (tens to low hundreds of samples) move it by tens to
// a few hundred parts per million per update, matching the clock-drift-correction
// settling behavior spec.md §8 scenario 6 describes.
const (
	defaultEstimatorKp = 2e-6
	defaultEstimatorKi = 2e-8
)

// NewEstimator returns an Estimator targeting aimQueueSize samples, with
// freq_coeff clamped to [1-maxScalingDeviation, 1+maxScalingDeviation].
func NewEstimator(aimQueueSize uint32, maxScalingDeviation float64) (*Estimator, error) {
	if maxScalingDeviation <= 0 {
		return nil, fmt.Errorf("audio: estimator: max_scaling_deviation must be positive, got %f", maxScalingDeviation)
	}
	return &Estimator{
		aimQueueSize: float64(aimQueueSize),
		kp:           defaultEstimatorKp,
		ki:           defaultEstimatorKi,
		maxDeviation: maxScalingDeviation,
		coeff:        1,
	}, nil
}

// Update runs one controller step given the current jitter-buffer queue
// depth in samples, and returns the resulting freq_coeff.
func (e *Estimator) Update(queueDepthSamples uint32) float64 {
	errVal := float64(queueDepthSamples) - e.aimQueueSize

	e.integral += errVal
	if e.ki != 0 {
		maxIntegral := e.maxDeviation / e.ki
		if e.integral > maxIntegral {
			e.integral = maxIntegral
		} else if e.integral < -maxIntegral {
			e.integral = -maxIntegral
		}
	}

	coeff := 1 + e.kp*errVal + e.ki*e.integral
	if coeff > 1+e.maxDeviation {
		coeff = 1 + e.maxDeviation
	} else if coeff < 1-e.maxDeviation {
		coeff = 1 - e.maxDeviation
	}
	e.coeff = coeff
	return coeff
}

// FreqCoeff returns the most recently computed coefficient.
func (e *Estimator) FreqCoeff() float64 { return e.coeff }

// Reset clears the integrator and returns freq_coeff to 1.0, for use
// when a session restarts the jitter buffer's startup gate.
func (e *Estimator) Reset() {
	e.integral = 0
	e.coeff = 1
}
