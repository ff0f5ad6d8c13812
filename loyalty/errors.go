package loyalty

import "errors"

var (
	// ErrNotFound indicates an unknown customer. Surfaced to the caller,
	// never retried.
	ErrNotFound = errors.New("loyalty: customer not found")
	// ErrCustomerInactive indicates the customer has been deactivated.
	ErrCustomerInactive = errors.New("loyalty: customer inactive")
	// ErrConflictRetryable indicates an allocation lost a storage race after
	// exhausting its internal retries. The caller retries the whole call;
	// numbers are never skipped or reused across retries.
	ErrConflictRetryable = errors.New("loyalty: storage conflict, retry")
	// ErrDuplicateIgnored marks a reward insert rejected by a uniqueness key.
	// It is the expected outcome of a replayed cascade and is never surfaced.
	ErrDuplicateIgnored = errors.New("loyalty: duplicate reward ignored")
	// ErrInvariantViolation covers non-positive amounts, reused global
	// numbers and other states that must abort rather than self-correct.
	ErrInvariantViolation = errors.New("loyalty: invariant violation")
	// ErrEmailTaken indicates a registration with an already-used email.
	ErrEmailTaken = errors.New("loyalty: email already registered")
	// ErrReferralCodeUnknown indicates an unresolvable referral code.
	ErrReferralCodeUnknown = errors.New("loyalty: referral code unknown")
)
