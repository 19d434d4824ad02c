package resolver

import (
	"strings"

	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// NaiveQuery answers a single query by scanning every role and unioning
// the scope sets of those whose activation pattern intersects q. It
// exists to be checked against the compiled DFA in differential tests;
// production code should always go through Build/Query instead.
func NaiveQuery(roles []role.Closed, q scope.Scope) []scope.Scope {
	var collected []scope.Scope
	for _, r := range roles {
		if scope.Intersects(role.ActivationPattern(r.ID), q) {
			collected = append(collected, r.Scopes...)
		}
	}
	return scope.Normalize(collected)
}

// NaiveExpandScopes is the naive counterpart to Resolver.ExpandScopes.
func NaiveExpandScopes(roles []role.Closed, given []scope.Scope) []scope.Scope {
	var result []scope.Scope
	for _, q := range given {
		if strings.HasPrefix(string(q), scope.AssumePrefix) {
			result = scope.Merge(result, NaiveQuery(roles, q))
		} else {
			result = scope.Merge(result, []scope.Scope{q})
		}
	}
	return result
}
