package relay

import (
	"slices"
	"sort"
	"strings"
)

// Resolver expands middleware references into a flat, deduplicated and
// priority ordered list of concrete references.
//
// Groups are checked before aliases, so a name registered as both
// resolves as a group.
type Resolver struct {
	groups   map[string][]Ref
	aliases  map[string]string
	priority map[string]int
	order    []string
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		groups:   make(map[string][]Ref),
		aliases:  make(map[string]string),
		priority: make(map[string]int),
	}
}

// Group registers (or replaces) a named, ordered bundle of references.
func (r *Resolver) Group(name string, refs ...Ref) {
	r.groups[name] = slices.Clone(refs)
}

// Alias maps a short name to a concrete middleware name.
func (r *Resolver) Alias(alias, concrete string) {
	r.aliases[alias] = concrete
}

// Priority replaces the priority list. Names earlier in the list run first.
func (r *Resolver) Priority(names ...string) {
	r.order = slices.Clone(names)
	clear(r.priority)
	for i, name := range names {
		if _, ok := r.priority[name]; !ok {
			r.priority[name] = i
		}
	}
}

// Groups returns a copy of the registered groups.
func (r *Resolver) Groups() map[string][]Ref {
	m := make(map[string][]Ref, len(r.groups))
	for name, refs := range r.groups {
		m[name] = slices.Clone(refs)
	}
	return m
}

// Aliases returns a copy of the registered aliases.
func (r *Resolver) Aliases() map[string]string {
	m := make(map[string]string, len(r.aliases))
	for alias, name := range r.aliases {
		m[alias] = name
	}
	return m
}

// PriorityList returns the configured priority list.
func (r *Resolver) PriorityList() []string {
	return slices.Clone(r.order)
}

// Resolve expands groups and aliases, removes duplicates (same name and
// same args) and stable sorts the result by priority.
func (r *Resolver) Resolve(refs []Ref) ([]Ref, error) {
	flat := make([]Ref, 0, len(refs))
	var err error
	flat, err = r.expand(flat, refs, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(flat))
	unique := flat[:0]
	for _, ref := range flat {
		key := ref.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, ref)
	}

	if len(r.priority) > 0 {
		sort.SliceStable(unique, func(i, j int) bool {
			return r.rank(unique[i]) < r.rank(unique[j])
		})
	}
	return unique, nil
}

// rank returns the priority index of ref, unprioritised names sort last.
// The priority list may name an alias in place of its concrete name.
func (r *Resolver) rank(ref Ref) int {
	if i, ok := r.priority[ref.Name]; ok {
		return i
	}
	for i, name := range r.order {
		if r.aliases[name] == ref.Name {
			return i
		}
	}
	return len(r.order)
}

func (r *Resolver) expand(dst, refs []Ref, stack []string) ([]Ref, error) {
	for _, ref := range refs {
		if members, ok := r.groups[ref.Name]; ok {
			if slices.Contains(stack, ref.Name) {
				return nil, ErrMiddlewareCycle.With(strings.Join(append(stack, ref.Name), " -> "))
			}
			var err error
			dst, err = r.expand(dst, members, append(stack, ref.Name))
			if err != nil {
				return nil, err
			}
			continue
		}
		if concrete, ok := r.aliases[ref.Name]; ok {
			dst = append(dst, ref.withName(concrete))
			continue
		}
		dst = append(dst, ref.withName(ref.Name))
	}
	return dst, nil
}
