package transport

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// Reconnect policies.
const (
	PolicyConstant    = "constant"
	PolicyExponential = "exponential"
)

// newPolicy builds the reconnect delay source. The constant policy retries
// forever at delay; the exponential policy starts at delay and grows up to
// maxDelay, also without giving up.
func newPolicy(name string, delay, maxDelay time.Duration) (backoff.BackOff, error) {
	switch name {
	case "", PolicyConstant:
		return backoff.NewConstantBackOff(delay), nil
	case PolicyExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = delay
		if maxDelay > 0 {
			b.MaxInterval = maxDelay
		}
		b.MaxElapsedTime = 0
		b.Reset()
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}
