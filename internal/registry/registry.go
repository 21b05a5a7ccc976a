// Package registry is the thread-safe facade over the name tree: it
// layers declared mappings (key -> names) and active containers
// (id -> container) on top of internal/nametree, and is the single
// synchronization point the ingestor and the DNS responder both go
// through. Grounded on original_source/dnsrest/registry.py, generalized
// to containers with more than one address per spec.md's Container
// record.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/lidio601/docker-dns-rest/internal/nametree"
)

// Container is the record the ingestor derives per name and feeds to
// Activate/Deactivate.
type Container struct {
	ID      string
	Name    string
	Running bool
	Addrs   []string
	Names   []nametree.Label
}

type mapping struct {
	key   string
	names []nametree.Label
}

// Registry owns every mutable piece of DNS state: declared mappings,
// active containers, and the name tree they're projected onto. A single
// mutex guards all three for the duration of each public operation.
type Registry struct {
	mu       sync.Mutex
	domain   string
	mappings map[string]*mapping
	active   map[string]*Container
	tree     *nametree.Tree
}

// New returns an empty Registry. domain, if non-empty, is the global
// suffix appended to bare "name:/" keys that don't already carry it.
func New(domain string) *Registry {
	return &Registry{
		domain:   strings.TrimPrefix(domain, "."),
		mappings: make(map[string]*mapping),
		active:   make(map[string]*Container),
		tree:     nametree.NewTree(),
	}
}

const namePrefix = "name:/"

// normalizeKey lets callers pass either a bare container name or a fully
// qualified "name:/..." key: a leading "/" (as Docker reports container
// names) is stripped, and the global domain is appended if configured and
// not already present.
func (r *Registry) normalizeKey(key string) string {
	if !strings.HasPrefix(key, namePrefix) {
		return key
	}
	name := strings.TrimPrefix(key[len(namePrefix):], "/")
	if r.domain != "" && !strings.HasSuffix(name, "."+r.domain) {
		name = name + "." + r.domain
	}
	return namePrefix + name
}

// Add declares that key resolves to names once its owning container is
// active. Any previous mapping under key is dropped first. If a
// container already active matches key by name or id, its addresses are
// installed into the tree immediately -- this is the race fix for a
// mapping declared after its container has already started.
func (r *Registry) Add(ctx context.Context, key string, names []nametree.Label) {
	key = r.normalizeKey(key)
	r.Remove(ctx, key)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.mappings[key] = &mapping{key: key, names: names}

	for _, c := range r.active {
		if key == namePrefix+c.Name || key == "id:/"+c.ID {
			r.activateLocked(ctx, names, c.Addrs, key)
		}
	}
}

// Remove drops the mapping under key, deactivating every name it
// installed in the tree.
func (r *Registry) Remove(ctx context.Context, key string) {
	key = r.normalizeKey(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mappings[key]
	if !ok {
		return
	}
	r.deactivateLocked(ctx, m.names, nil, m.key)
	delete(r.mappings, m.key)
}

// Get returns the canonical dotted names declared under key, or nil.
func (r *Registry) Get(key string) []string {
	key = r.normalizeKey(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mappings[key]
	if !ok {
		return nil
	}
	out := make([]string, len(m.names))
	for i, n := range m.names {
		out[i] = n.IDNA()
	}
	return out
}

// ActivateStatic installs a static pin for label -> address, tagged so it
// can be independently removed without disturbing any container mapping
// that happens to share the address.
func (r *Registry) ActivateStatic(ctx context.Context, label, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := "domain:/" + label
	r.activateLocked(ctx, []nametree.Label{nametree.NewLabel(label)}, []string{address}, tag)
}

// DeactivateStatic removes a static pin previously installed with
// ActivateStatic.
func (r *Registry) DeactivateStatic(ctx context.Context, label, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := "domain:/" + label
	r.deactivateLocked(ctx, []nametree.Label{nametree.NewLabel(label)}, []string{address}, tag)
}

// Activate marks container active and, if a mapping exists for its name
// or id, installs that mapping's names in the tree against the
// container's current addresses.
func (r *Registry) Activate(ctx context.Context, c *Container) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active[c.ID] = c
	if m := r.mappingFor(c); m != nil {
		dlog.Infof(ctx, "setting %s (%s) as active", c.Name, shortID(c.ID))
		r.activateLocked(ctx, m.names, c.Addrs, m.key)
	}
}

// Deactivate removes container from the active set and, if a mapping
// exists for it, removes every name it installed from the tree.
func (r *Registry) Deactivate(ctx context.Context, c *Container) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, c.ID)

	if m := r.mappingFor(c); m != nil {
		dlog.Infof(ctx, "setting %s (%s) as inactive", c.Name, shortID(c.ID))
		r.deactivateLocked(ctx, m.names, nil, m.key)
	}
}

// Resolve returns the deduplicated addresses currently bound to name, or
// nil if nothing matches.
func (r *Registry) Resolve(ctx context.Context, name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.tree.Get(nametree.NewLabel(name))
	if len(links) == 0 {
		dlog.Debugf(ctx, "no mapping for %s", name)
		return nil
	}

	seen := make(map[string]struct{}, len(links))
	addrs := make([]string, 0, len(links))
	for _, l := range links {
		if _, dup := seen[l.Address]; dup {
			continue
		}
		seen[l.Address] = struct{}{}
		addrs = append(addrs, l.Address)
	}
	dlog.Debugf(ctx, "resolved %s -> %s", name, strings.Join(addrs, ", "))
	return addrs
}

// Rename moves the mapping under "name:/oldName" to "name:/newName",
// preserving its names and swapping its key. No entries are installed
// for the new name: entries already in the tree keep answering for the
// mapping's names, re-tagged with the new key, until the container's next
// die (or a re-declaration under the new key) removes them by that key.
// See DESIGN.md for the rationale.
func (r *Registry) Rename(ctx context.Context, oldName, newName string) {
	if oldName == "" || newName == "" {
		return
	}
	oldKey := r.normalizeKey(namePrefix + strings.TrimPrefix(oldName, "/"))
	newKey := r.normalizeKey(namePrefix + strings.TrimPrefix(newName, "/"))

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mappings[oldKey]
	if !ok {
		return
	}
	delete(r.mappings, oldKey)
	m.key = newKey
	r.mappings[newKey] = m
	for _, name := range m.names {
		for _, addr := range r.tree.Remove(name, oldKey, nil) {
			r.tree.Put(name, addr, newKey)
		}
	}
	dlog.Infof(ctx, "renamed (%s -> %s)", oldName, newName)
}

// Dump renders the underlying tree for debugging.
func (r *Registry) Dump() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.ToDict()
}

func (r *Registry) mappingFor(c *Container) *mapping {
	if m, ok := r.mappings[namePrefix+c.Name]; ok {
		return m
	}
	return r.mappings["id:/"+c.ID]
}

func (r *Registry) activateLocked(ctx context.Context, names []nametree.Label, addrs []string, tag string) {
	for _, name := range names {
		for _, addr := range addrs {
			r.tree.Put(name, addr, tag)
		}
		dlog.Debugf(ctx, "added %s -> %v key=%s", name.IDNA(), addrs, tag)
	}
}

func (r *Registry) deactivateLocked(ctx context.Context, names []nametree.Label, addresses []string, tag string) {
	for _, name := range names {
		removed := r.tree.Remove(name, tag, addresses)
		for _, addr := range removed {
			dlog.Debugf(ctx, "removed %s -> %s", name.IDNA(), addr)
		}
	}
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
