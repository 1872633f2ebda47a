package reuse

import (
	"errors"
	"reflect"

	"github.com/google/uuid"
)

// chainLink is one node of the resolution scope chain built during a single
// top-level resolve call. The link's scope is an ordinary *Scope; the tag
// records the service that opened the link so InResolutionScopeOf can bind
// dependencies to it. Links are immutable once created and read without
// locks.
type chainLink struct {
	scope     *Scope
	boundType reflect.Type
	boundKey  any
	parent    *chainLink
}

// newChainLink opens a link whose scope parents on parentScope: the resolve
// target for the root link, the parent link's scope otherwise. Link scopes
// skip the cancellation plumbing of opened scopes; they are either handed to
// their chain parent for disposal or dropped empty when the call ends, and
// an injected handle can still Close one early.
func newChainLink(parentLink *chainLink, parentScope *Scope, boundType reflect.Type, boundKey any) *chainLink {
	s := &Scope{
		id:       uuid.NewString(),
		parent:   parentScope,
		provider: parentScope.provider,
		store:    newStore(parentScope.provider.slotCount),
	}
	s.ctx = ContextWithScope(parentScope.ctx, s)
	s.cancel = func() {}

	return &chainLink{
		scope:     s,
		boundType: boundType,
		boundKey:  boundKey,
		parent:    parentLink,
	}
}

// findMatch walks the chain from this link outward and returns the link
// satisfying r, nil when none does. The first hit is the nearest match; with
// r.Outermost() the walk continues and the farthest hit wins.
func (l *chainLink) findMatch(r Reuse) *chainLink {
	var match *chainLink
	for link := l; link != nil; link = link.parent {
		if r.matchesLink(link.boundType, link.boundKey) {
			match = link
			if !r.Outermost() {
				return match
			}
		}
	}
	return match
}

// finishLinks runs when a top-level resolve call completes. A link that
// tracked disposables is itself tracked on its chain parent, the resolve
// target for the root link, so release still happens only through explicit
// scope closure. Empty links are left to the garbage collector. Links are
// visited children-first so a link kept alive only by a tracked child is
// itself handed upward.
func finishLinks(links []*chainLink, target *Scope) error {
	var errs []error
	for i := len(links) - 1; i >= 0; i-- {
		link := links[i]
		if link.scope.disposables.size() == 0 {
			continue
		}

		parent := target
		if link.parent != nil {
			parent = link.parent.scope
		}

		if err := parent.track(link.scope, false, false); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
