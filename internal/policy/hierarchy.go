package policy

import (
	"fmt"
	"sort"
)

// Hierarchy resolves declared roles into their transitive closure over the
// "implies" relation. Immutable after construction, safe for concurrent use.
type Hierarchy struct {
	implies map[Role][]Role
}

// NewHierarchy validates the implication table and returns a Hierarchy.
// A cycle anywhere in the table is a configuration error; resolution over a
// cyclic table could never terminate deterministically.
func NewHierarchy(table map[Role][]Role) (*Hierarchy, error) {
	implies := make(map[Role][]Role, len(table))
	for role, implied := range table {
		implies[role] = append([]Role(nil), implied...)
	}
	if cycle := findCycle(implies); len(cycle) > 0 {
		return nil, fmt.Errorf("policy: role implication cycle: %s", formatCycle(cycle))
	}
	return &Hierarchy{implies: implies}, nil
}

// Expand computes the transitive closure of the declared roles. The result is
// independent of traversal order and always contains the declared roles
// themselves.
func (h *Hierarchy) Expand(declared []Role) RoleSet {
	expanded := make(RoleSet, len(declared))
	stack := append([]Role(nil), declared...)
	for len(stack) > 0 {
		role := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if expanded.Has(role) {
			continue
		}
		expanded[role] = struct{}{}
		stack = append(stack, h.implies[role]...)
	}
	return expanded
}

// Roles returns every role mentioned on the left-hand side of the table.
func (h *Hierarchy) Roles() []Role {
	set := make(RoleSet, len(h.implies))
	for r := range h.implies {
		set[r] = struct{}{}
	}
	return set.Sorted()
}

const (
	colorUnvisited = iota
	colorInProgress
	colorDone
)

// findCycle runs a colored depth-first search and returns the first cycle
// found, or nil.
func findCycle(implies map[Role][]Role) []Role {
	colors := make(map[Role]int, len(implies))
	var path []Role

	var visit func(Role) []Role
	visit = func(role Role) []Role {
		switch colors[role] {
		case colorDone:
			return nil
		case colorInProgress:
			// Close the loop for the error message.
			for i, r := range path {
				if r == role {
					return append(append([]Role(nil), path[i:]...), role)
				}
			}
			return []Role{role, role}
		}
		colors[role] = colorInProgress
		path = append(path, role)
		for _, next := range implies[role] {
			if cycle := visit(next); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		colors[role] = colorDone
		return nil
	}

	roles := make([]Role, 0, len(implies))
	for r := range implies {
		roles = append(roles, r)
	}
	// Deterministic error output regardless of map order.
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	for _, r := range roles {
		if cycle := visit(r); cycle != nil {
			return cycle
		}
	}
	return nil
}

func formatCycle(cycle []Role) string {
	out := ""
	for i, r := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += string(r)
	}
	return out
}
