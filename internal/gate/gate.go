// Package gate implements the intent override gate: a pure classifier that
// decides whether a message is answered with a canonical response and which
// domain transition it asks the session state machine to apply.
package gate

import (
	"fmt"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/rules"
	"github.com/tjfontaine/polyglot-intent-router/internal/textnorm"
)

// Gate evaluates messages against a rule set. It holds no mutable state and is
// safe for concurrent use.
type Gate struct {
	rules         *rules.Set
	defaultDomain string
}

// New creates a gate. defaultDomain is the domain an unlocked session routes to.
func New(set *rules.Set, defaultDomain string) (*Gate, error) {
	if set == nil {
		return nil, domain.ErrConfiguration("gate requires a rule set")
	}
	if defaultDomain == "" {
		return nil, domain.ErrConfiguration("gate requires a default domain")
	}
	return &Gate{rules: set, defaultDomain: defaultDomain}, nil
}

// DefaultDomain returns the domain unlocked sessions route to.
func (g *Gate) DefaultDomain() string {
	return g.defaultDomain
}

// Evaluate classifies text against session as of now. A nil session is
// treated as a fresh DEFAULT session. An expired lock is treated as DEFAULT.
func (g *Gate) Evaluate(text string, session *domain.Session, now time.Time) domain.OverrideDecision {
	locked := session.IsLockedAndActive(now)
	active := g.defaultDomain
	if session != nil && session.ActiveDomain != "" && !session.LockExpired(now) {
		active = session.ActiveDomain
	}

	d := domain.OverrideDecision{
		PreviousDomain:    active,
		NewDomain:         active,
		CanRouteToDefault: !locked,
		Action:            domain.ActionNone,
	}

	normalized := textnorm.Normalize(text)

	for _, tier := range domain.EvaluationOrder {
		var skip func(rules.Match) bool
		if tier == domain.PriorityDomainSwitch {
			// No switch into the domain the session is already in, and no
			// switching at all while a lock pins the conversation.
			if locked {
				continue
			}
			skip = func(m rules.Match) bool { return m.Rule.Category == active }
		}

		m, ok := g.rules.Match(tier, normalized, skip)
		if !ok {
			continue
		}
		return g.apply(d, tier, m, locked)
	}

	if locked {
		cat, _ := g.rules.Category(active)
		d.Override = true
		d.Level = domain.LevelHold
		d.Category = active
		d.CanonicalResponse = holdResponse(cat, active)
		d.Action = domain.ActionHold
	}
	return d
}

func (g *Gate) apply(d domain.OverrideDecision, tier domain.Priority, m rules.Match, locked bool) domain.OverrideDecision {
	d.Override = true
	d.Level = domain.Level(tier)
	d.TriggerWord = m.Rule.Pattern
	d.Category = m.Rule.Category
	d.CanonicalResponse = m.Category.Response

	switch tier {
	case domain.PrioritySafety:
		d.NewDomain = domain.SafetyDomain
		d.CanRouteToDefault = false
		d.Action = domain.ActionLock
		d.LockTTL = m.Category.TTL

	case domain.PriorityMeta:
		switch {
		case m.Category.Unlock && locked:
			d.NewDomain = g.defaultDomain
			d.Action = domain.ActionUnlock
		case m.Category.Unlock:
			// Nothing to release; the session stays routable.
		case locked:
			d.Action = domain.ActionHold
		default:
			d.NewDomain = m.Rule.Category
			d.CanRouteToDefault = false
			d.Action = domain.ActionLock
			d.LockTTL = m.Category.TTL
		}

	case domain.PriorityDomainSwitch:
		d.NewDomain = m.Rule.Category
		d.CanRouteToDefault = false
		d.Action = domain.ActionLock
		d.LockTTL = m.Category.TTL

	case domain.PriorityAdjustment:
		if locked {
			d.Action = domain.ActionHold
		}
	}
	return d
}

func holdResponse(c rules.Category, active string) string {
	if c.HoldResponse != "" {
		return c.HoldResponse
	}
	if c.Response != "" {
		return c.Response
	}
	return fmt.Sprintf("Seguimos en %s.", active)
}
