package inliner

import (
	"strconv"

	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

// Group is the set of call sites of one kind within one method. All of its
// sites share one id.
type Group struct {
	Method  *scene.Method
	Kind    trace.Kind
	ID      int
	Targets []string
}

// Key returns the registry entry for target in this group.
func (g *Group) Key(target string) string { return strconv.Itoa(g.ID) + target }

// Context owns the call-site id counter and the registry entries built so
// far. Ids are handed out in oracle order and never reused, so the registry
// emitted from a plan matches the rewrite of the same plan.
type Context struct {
	next     int
	registry [trace.NumKinds][]string
}

// NewContext returns a context whose first id is 0.
func NewContext() *Context { return &Context{} }

// NextID returns the id the next group will get.
func (c *Context) NextID() int { return c.next }

// Plan allocates one id per (method, kind) pair with at least one target,
// visiting methods in oracle order and kinds in processing order, and
// records the registry entries of every group.
func (c *Context) Plan(o Oracle) []*Group {
	var groups []*Group
	for _, m := range o.Methods() {
		for _, k := range trace.Kinds() {
			targets := o.Targets(m, k)
			if len(targets) == 0 {
				continue
			}
			g := &Group{Method: m, Kind: k, ID: c.next, Targets: targets}
			c.next++
			for _, t := range targets {
				c.registry[k] = append(c.registry[k], g.Key(t))
			}
			groups = append(groups, g)
		}
	}
	return groups
}

// Registry returns the entries recorded for kind k, in emission order.
func (c *Context) Registry(k trace.Kind) []string {
	return append([]string(nil), c.registry[k]...)
}
