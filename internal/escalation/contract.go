// Package escalation is the shared contract every content-producing
// module implements: a cheap pass, per-item validation, a bounded
// boost pass for failing items, and explicit resolution records. The
// Runtime does not run this loop itself — it only enforces that a
// module's output carries the records this package defines.
package escalation

import "fmt"

// Status is the terminal disposition of one escalation-managed item.
type Status string

const (
	// StatusFound means the item passed validation, on the cheap pass
	// or after boosting.
	StatusFound Status = "found"
	// StatusResolvedNotFound means every pass ran and the module
	// determined, with a reason, that the item genuinely does not exist.
	StatusResolvedNotFound Status = "resolved_not_found"
	// StatusUnresolved means the retry cap was hit with no resolution
	// either way.
	StatusUnresolved Status = "unresolved"
)

// Caps are the mandatory, finite bounds a module must declare before
// running its loop. MaxAttempts is the only attempt-style bound this
// type carries, and it must be positive.
type Caps struct {
	MaxAttempts int  `json:"max_attempts"`
	AllowStubs  bool `json:"allow_stubs"`
}

// Validate enforces that a cap is actually finite and positive — an
// escalation loop with no cap is not a cap.
func (c Caps) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("escalation: max_attempts must be a finite positive value, got %d", c.MaxAttempts)
	}
	return nil
}

// Verdict is an ItemValidator's tri-state judgment of one attempt: the
// item passed, the module has concluded (with a reason) that the item
// genuinely does not exist, or the result is still inconclusive and the
// item is eligible for another boost attempt.
type Verdict int

const (
	// VerdictPassed means the item is valid as-is.
	VerdictPassed Verdict = iota
	// VerdictNotFound means the module has determined, conclusively,
	// that the item does not exist — no further boosting will help.
	VerdictNotFound
	// VerdictRetry means the item has not yet passed but boosting may
	// still resolve it, provided the attempt cap allows another try.
	VerdictRetry
)

// ItemValidator judges one produced item. A non-empty reason explains a
// VerdictNotFound or VerdictRetry outcome.
type ItemValidator[T any] func(item T) (verdict Verdict, reason string)

// Pass is one cheap-pass or boost-pass attempt over an item.
type Pass[T any] func(item T, attempt int) (T, error)

// Loop runs the cheap-pass → validate → boost-pass → revalidate
// discipline over items of type T, bounded by caps.MaxAttempts boost
// attempts. Boost outputs supersede cheap outputs for the same item;
// there is no fallback to an earlier result once a boost attempt
// produces a new value. A VerdictNotFound stops escalation immediately,
// the same as VerdictPassed — only VerdictRetry keeps the item in play
// up to the cap.
func Loop[T any](items []T, caps Caps, cheap Pass[T], boost Pass[T], validate ItemValidator[T]) ([]Resolution[T], error) {
	if err := caps.Validate(); err != nil {
		return nil, err
	}

	resolutions := make([]Resolution[T], len(items))
	for i, item := range items {
		current, err := cheap(item, 0)
		if err != nil {
			return nil, fmt.Errorf("escalation: cheap pass failed for item %d: %w", i, err)
		}

		verdict, reason := validate(current)
		attempts := 1
		for verdict == VerdictRetry && attempts <= caps.MaxAttempts {
			boosted, err := boost(current, attempts)
			if err != nil {
				return nil, fmt.Errorf("escalation: boost pass %d failed for item %d: %w", attempts, i, err)
			}
			current = boosted
			verdict, reason = validate(current)
			attempts++
		}

		resolutions[i] = Resolution[T]{
			Item:     current,
			Attempts: attempts,
			Status:   statusFor(verdict, attempts, caps),
			Reason:   reason,
		}
	}
	return resolutions, nil
}

func statusFor(verdict Verdict, attempts int, caps Caps) Status {
	switch verdict {
	case VerdictPassed:
		return StatusFound
	case VerdictNotFound:
		return StatusResolvedNotFound
	default:
		return StatusUnresolved
	}
}
