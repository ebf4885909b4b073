package share

import (
	"context"
	"time"
)

// PropagationKind names a point in the table workflow where a cross-account
// mutation is applied asynchronously with no completion signal beyond time.
type PropagationKind string

const (
	// PropagationLegacyRevoke follows the revoke of the blanket legacy
	// permission on the source table.
	PropagationLegacyRevoke PropagationKind = "legacy-revoke"
	// PropagationCrossAccountGrant follows the cross-account catalog
	// grant; resource-share associations can take well over ten seconds.
	PropagationCrossAccountGrant PropagationKind = "cross-account-grant"
	// PropagationInvitationAccept follows each accepted resource-share
	// invitation.
	PropagationInvitationAccept PropagationKind = "invitation-accept"
)

// Clock waits out the settle delay of a propagation point. Tests inject a
// zero-delay implementation.
type Clock interface {
	AwaitPropagation(ctx context.Context, kind PropagationKind) error
}

type settleClock struct {
	delays map[PropagationKind]time.Duration
}

// NewSettleClock returns the production clock with the documented settle
// delays per propagation point.
func NewSettleClock() Clock {
	return &settleClock{
		delays: map[PropagationKind]time.Duration{
			PropagationLegacyRevoke:      5 * time.Second,
			PropagationCrossAccountGrant: 15 * time.Second,
			PropagationInvitationAccept:  5 * time.Second,
		},
	}
}

func (c *settleClock) AwaitPropagation(ctx context.Context, kind PropagationKind) error {
	delay := c.delays[kind]
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// noopClock skips every settle delay.
type noopClock struct{}

func (noopClock) AwaitPropagation(context.Context, PropagationKind) error {
	return nil
}

// NewImmediateClock returns a clock without delays, for tests and dry runs.
func NewImmediateClock() Clock {
	return noopClock{}
}
