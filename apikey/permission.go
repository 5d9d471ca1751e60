package apikey

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Permission is a capability granted to an API key, written as
// "resource:action" (tasks:read), a bare "resource", or "*" for every
// permission. Permissions compare by their exact scope string: no case
// folding, trimming or splitting, so "tasks:" and "tasks" differ.
type Permission struct {
	scope string
}

// AnyPermission grants every permission. Its string form is "*".
var AnyPermission = Permission{scope: "*"}

// IsAny reports whether p is AnyPermission.
func (p Permission) IsAny() bool {
	return p.scope == AnyPermission.scope
}

// Resource is the part of the scope before the first ':'.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(p.scope, ":")
	return resource
}

// Action is the part of the scope after the first ':', if any.
func (p Permission) Action() string {
	_, action, _ := strings.Cut(p.scope, ":")
	return action
}

func (p Permission) String() string {
	return p.scope
}

// ParsePermission wraps a scope string as given.
func ParsePermission(s string) Permission {
	return Permission{scope: s}
}

// Permissions is the set of permissions held by a key.
type Permissions = mapset.Set[Permission]

// NewPermissions builds a set from scope strings, skipping empty ones.
func NewPermissions(scopes ...string) Permissions {
	set := mapset.NewThreadUnsafeSetWithSize[Permission](len(scopes))
	for _, s := range scopes {
		if s == "" {
			continue
		}
		set.Add(ParsePermission(s))
	}
	return set
}

// Permits reports whether granted allows want: either granted holds
// AnyPermission or it holds want exactly. There is no hierarchy, so
// tasks:* does not imply tasks:read.
func Permits(granted Permissions, want Permission) bool {
	return granted.Contains(AnyPermission) || granted.Contains(want)
}
