package progress

import (
	"math"
	"time"
)

const (
	// accuracyBufferThreshold: at or below this accuracy the remaining
	// estimate gets padded.
	accuracyBufferThreshold = 70.0
	// bufferFactor is the 20% padding applied to each remaining phase.
	bufferFactor = 1.2
)

// computeTimeline estimates completion from the remaining phase durations,
// weighted by how well past estimates matched reality. Accuracy is
// max(0, 100 - meanRelativeVariance*100) over completed phases; with no
// completed phases yet it is taken as 100.
func computeTimeline(p *OnboardingProgress, now time.Time) Timeline {
	var variances []float64
	for _, ph := range p.Phases {
		if ph.Status != PhaseCompleted || ph.ActualDuration == nil || ph.EstimatedDuration <= 0 {
			continue
		}
		est := ph.EstimatedDuration.Seconds()
		act := ph.ActualDuration.Seconds()
		variances = append(variances, math.Abs(act-est)/est)
	}

	accuracy := 100.0
	if len(variances) > 0 {
		var sum float64
		for _, v := range variances {
			sum += v
		}
		accuracy = math.Max(0, 100-(sum/float64(len(variances)))*100)
	}

	var remaining time.Duration
	for _, ph := range p.Phases {
		if ph.Status != PhaseCompleted {
			remaining += ph.EstimatedDuration
		}
	}

	buffered := false
	if accuracy <= accuracyBufferThreshold {
		remaining = time.Duration(float64(remaining) * bufferFactor)
		buffered = true
	}

	return Timeline{
		EstimatedCompletion: now.Add(remaining),
		RemainingDuration:   remaining,
		Accuracy:            accuracy,
		BufferApplied:       buffered,
	}
}
