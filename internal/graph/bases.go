package graph

import (
	"strings"

	"github.com/phobologic/scg/internal/model"
)

// Index looks classes up by fully qualified name.
type Index interface {
	Lookup(fqn string) (*model.Class, bool)
}

// Resolver computes deep bases against the target's own class index and
// any number of external, read-only indexes, consulted in order.
type Resolver struct {
	local     Index
	externals []Index
}

// NewResolver returns a Resolver over local and externals.
func NewResolver(local Index, externals ...Index) *Resolver {
	return &Resolver{local: local, externals: externals}
}

// Resolve replaces c.DeepBases with the closure of its base names.
func (r *Resolver) Resolve(c *model.Class) {
	c.DeepBases = r.DeepBases(c)
}

// DeepBases returns the transitive closure of c's bases. A base that
// resolves contributes its FQN and its own bases; one that does not is
// recorded as spelled.
func (r *Resolver) DeepBases(c *model.Class) map[string]struct{} {
	out := map[string]struct{}{}
	visited := map[string]struct{}{c.FQN(): {}}
	r.collect(c, out, visited)
	return out
}

func (r *Resolver) collect(c *model.Class, out, visited map[string]struct{}) {
	for _, name := range c.Bases {
		base, ok := r.Lookup(name, c.Namespace)
		if !ok {
			out[name] = struct{}{}
			continue
		}
		fqn := base.FQN()
		if _, seen := visited[fqn]; seen {
			continue
		}
		visited[fqn] = struct{}{}
		out[fqn] = struct{}{}
		r.collect(base, out, visited)
	}
}

// Lookup resolves name as written inside namespace scope: the innermost
// enclosing namespace is tried first, then each outer one, then the global
// scope. At each candidate the local index is consulted before externals.
func (r *Resolver) Lookup(name string, scope []string) (*model.Class, bool) {
	name = strings.TrimPrefix(name, "::")
	for i := len(scope); i >= 0; i-- {
		candidate := name
		if i > 0 {
			candidate = strings.Join(scope[:i], "::") + "::" + name
		}
		if c, ok := r.find(candidate); ok {
			return c, true
		}
	}
	return nil, false
}

func (r *Resolver) find(fqn string) (*model.Class, bool) {
	if r.local != nil {
		if c, ok := r.local.Lookup(fqn); ok {
			return c, true
		}
	}
	for _, ext := range r.externals {
		if c, ok := ext.Lookup(fqn); ok {
			return c, true
		}
	}
	return nil, false
}
