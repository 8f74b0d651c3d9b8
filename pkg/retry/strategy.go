// Package retry provides durable, multi-instance-safe retry scheduling with
// backoff strategies.
package retry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
)

var ErrExhausted = errors.New("retry attempts exhausted")

const defaultMultiplier = 2.0

// NextDelay computes the delay before the given attempt (1-based). With
// strategy exponential, initial delay 10s and multiplier 2, attempts 1..3
// wait 10s, 20s, 40s. Custom strategies past their declared list repeat the
// final entry.
func NextDelay(schedule *models.RetrySchedule, attempt int) (time.Duration, error) {
	if attempt < 1 {
		return 0, fmt.Errorf("attempt must be >= 1, got %d", attempt)
	}

	switch schedule.Strategy {
	case models.RetryStrategyFixed:
		return schedule.InitialDelay, nil
	case models.RetryStrategyExponential:
		multiplier := schedule.Multiplier
		if multiplier <= 0 {
			multiplier = defaultMultiplier
		}

		delay := time.Duration(float64(schedule.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
		if schedule.MaxDelay > 0 && delay > schedule.MaxDelay {
			delay = schedule.MaxDelay
		}

		return delay, nil
	case models.RetryStrategyCustom:
		if len(schedule.CustomDelays) == 0 {
			return 0, errors.New("custom strategy requires at least one delay")
		}

		if attempt > len(schedule.CustomDelays) {
			return schedule.CustomDelays[len(schedule.CustomDelays)-1], nil
		}

		return schedule.CustomDelays[attempt-1], nil
	default:
		return 0, fmt.Errorf("unknown retry strategy %q", schedule.Strategy)
	}
}
