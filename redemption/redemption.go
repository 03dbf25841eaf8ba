package redemption

import (
	"errors"
	"time"

	"sova-txcore/goutils/datamodel"
)

// ErrNoActiveRequest means the user has no request in the queue. Callers must
// render "no active queue" rather than a zero-progress request.
var ErrNoActiveRequest = errors.New("no active redemption request")

type Status struct {
	IsReady              bool    `json:"is_ready"`
	TimeRemainingSeconds int64   `json:"time_remaining_seconds"`
	ProgressPercent      float64 `json:"progress_percent"`
	ReadyAt              int64   `json:"ready_at"`
	Fulfilled            bool    `json:"fulfilled"`
}

// Compute derives queue readiness from the request timestamp and the global delay.
func Compute(req *datamodel.RedemptionRequest, queueDelaySeconds int64, now time.Time) (*Status, error) {
	if req.Empty() {
		return nil, ErrNoActiveRequest
	}

	if queueDelaySeconds < 0 {
		queueDelaySeconds = 0
	}

	nowUnix := now.Unix()
	readyAt := req.RequestTimestamp + queueDelaySeconds

	status := &Status{
		IsReady:   nowUnix >= readyAt,
		ReadyAt:   readyAt,
		Fulfilled: req.Fulfilled,
	}

	if remaining := readyAt - nowUnix; remaining > 0 {
		status.TimeRemainingSeconds = remaining
	}

	if queueDelaySeconds == 0 {
		status.ProgressPercent = 100

		return status, nil
	}

	elapsed := nowUnix - req.RequestTimestamp
	status.ProgressPercent = clamp(float64(elapsed)/float64(queueDelaySeconds)*100, 0, 100)

	return status, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
