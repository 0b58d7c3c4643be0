// Package topology holds the in-memory topology registry: one node per IP,
// directed adjacency reconstructed from traceroute hops, and minimum hop
// distance from the vantage point.
//
// All methods are safe for concurrent use. Nodes returned by the registry are
// deep copies; mutating them has no effect on the registry.
package topology

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"topomap/internal/domain"
	"topomap/internal/errors"
	"topomap/internal/logging"
)

// Registry is the topology graph built up over scan cycles
type Registry struct {
	mu      sync.RWMutex
	nodes   map[string]*domain.Node
	vantage string
	subnet  netip.Prefix
	gateway string
	// first hops inside the local subnet whose vantage edge awaits
	// gateway classification
	deferred map[string]struct{}

	strict bool
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithStrict makes invariant violations panic instead of being logged and
// skipped
func WithStrict(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

// WithLogger sets the registry logger
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source used for last-seen stamps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry rooted at the vantage point. The vantage node
// is created immediately with hop distance 0.
func NewRegistry(vantageIP string, localSubnet netip.Prefix, opts ...Option) *Registry {
	r := &Registry{
		nodes:    make(map[string]*domain.Node),
		vantage:  vantageIP,
		subnet:   localSubnet.Masked(),
		deferred: make(map[string]struct{}),
		logger:   logging.Default().WithComponent("registry"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	v := domain.NewNode(vantageIP, domain.NodeStatusUp)
	v.NodeType = domain.NodeTypeVantage
	v.SetHopDistance(0)
	v.Touch(r.now())
	r.nodes[vantageIP] = v

	return r
}

// Upsert inserts node or merges it into the existing node with the same IP.
//
// Merging never blanks a populated field, never raises a known hop distance,
// never downgrades a known status to unknown, and unions adjacency.
func (r *Registry) Upsert(node domain.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.validIP(node.IP, "upsert") {
		return
	}
	r.upsertLocked(&node)
}

func (r *Registry) upsertLocked(src *domain.Node) *domain.Node {
	dst, ok := r.nodes[src.IP]
	if !ok {
		c := src.Clone()
		if c.Status == "" {
			c.Status = domain.NodeStatusUnknown
		}
		// Roles are assigned here and by ClassifyGateway only
		c.NodeType = domain.NodeTypeNone
		if c.IP == r.vantage {
			c.NodeType = domain.NodeTypeVantage
		}
		r.nodes[c.IP] = &c
		return &c
	}
	mergeNode(dst, src)
	if dst.IP == r.vantage {
		dst.NodeType = domain.NodeTypeVantage
	}
	return dst
}

// mergeNode folds src into dst field by field
func mergeNode(dst, src *domain.Node) {
	if src.MACAddress != "" {
		dst.MACAddress = src.MACAddress
	}
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.Vendor != "" {
		dst.Vendor = src.Vendor
	}
	if src.OS != "" {
		dst.OS = src.OS
	}
	if len(src.OpenPorts) > 0 {
		dst.OpenPorts = append([]domain.Port{}, src.OpenPorts...)
	}
	if src.LastSeen.After(dst.LastSeen) {
		dst.LastSeen = src.LastSeen
	}
	if src.Status != "" && (src.Status != domain.NodeStatusUnknown || dst.Status == "") {
		dst.Status = src.Status
	}
	for ip := range src.ConnectedTo {
		if ip != dst.IP {
			dst.AddEdge(ip)
		}
	}
	if src.HopDistance != nil {
		dst.SetHopDistance(*src.HopDistance)
	}
	for k, v := range src.OtherInfo {
		dst.SetOther(k, v)
	}
}

// Contains reports whether ip is registered
func (r *Registry) Contains(ip string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[ip]
	return ok
}

// Get returns a copy of the node for ip
func (r *Registry) Get(ip string) (domain.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[ip]
	if !ok {
		return domain.Node{}, errors.New(errors.CodeNotFound, "node not registered").WithTarget(ip).WithOp("get")
	}
	return n.Clone(), nil
}

// MergeTrace folds a traced path to targetIP into the graph.
//
// Unknown hops become placeholder nodes, consecutive hops are linked
// predecessor to successor, and every hop's distance is relaxed to the
// smallest TTL seen. The vantage is linked to the first hop directly when that
// hop is outside the local subnet; a local first hop is held back until the
// gateway is known.
func (r *Registry) MergeTrace(targetIP string, hops []domain.Hop) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.validIP(targetIP, "merge trace") {
		return
	}

	valid := make([]domain.Hop, 0, len(hops))
	for _, h := range hops {
		if !r.validHop(h) {
			continue
		}
		valid = append(valid, h)
	}

	for _, h := range valid {
		r.ensureLocked(h.IP, h.Host)
	}
	r.ensureLocked(targetIP, "")

	if len(valid) == 0 {
		return
	}

	r.linkVantageLocked(valid[0].IP)

	// A routing loop revisits a hop; linking back to it would close a cycle
	onPath := map[string]struct{}{valid[0].IP: {}}
	for i := 1; i < len(valid); i++ {
		prev, next := valid[i-1].IP, valid[i].IP
		if prev == next {
			continue
		}
		if _, seen := onPath[next]; seen {
			r.logger.Warn("routing loop in trace, skipping back edge",
				"target", targetIP, "from", prev, "to", next, "ttl", valid[i].TTL)
			continue
		}
		onPath[next] = struct{}{}
		r.nodes[prev].AddEdge(next)
	}

	for _, h := range valid {
		r.nodes[h.IP].SetHopDistance(h.TTL)
	}
}

// ensureLocked registers a placeholder for ip if it is unseen and fills in a
// missing hostname from the hop
func (r *Registry) ensureLocked(ip, host string) *domain.Node {
	n, ok := r.nodes[ip]
	if !ok {
		n = domain.NewPlaceholder(ip, host)
		r.nodes[ip] = n
		return n
	}
	if n.Hostname == "" && host != "" {
		n.Hostname = host
	}
	return n
}

func (r *Registry) linkVantageLocked(first string) {
	if first == r.vantage {
		return
	}
	v := r.nodes[r.vantage]

	if !r.inLocalSubnet(first) {
		v.AddEdge(first)
		return
	}

	if r.gateway != "" {
		v.AddEdge(r.gateway)
		return
	}
	r.deferred[first] = struct{}{}
}

func (r *Registry) inLocalSubnet(ip string) bool {
	if !r.subnet.IsValid() {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return r.subnet.Contains(addr.Unmap())
}

// ClassifyGateway marks gatewayIP as the gateway and collapses the local
// candidates into a star around it.
//
// The gateway's adjacency becomes exactly the other local candidates, every
// other local candidate's adjacency becomes exactly the gateway, and the
// vantage's edges to local candidates are replaced by a single edge to the
// gateway. Candidates outside the local subnet keep their edges. Returns
// CLASSIFICATION_AMBIGUITY, leaving the registry unchanged, when gatewayIP is
// empty or not among the registered candidates.
func (r *Registry) ClassifyGateway(gatewayIP string, candidates []string) error {
	if gatewayIP == "" {
		return errors.New(errors.CodeClassificationAmbiguity, "no gateway resolved").WithOp("classify gateway")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		found bool
		local []string
		seen  = make(map[string]struct{}, len(candidates))
	)
	for _, ip := range candidates {
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		if _, ok := r.nodes[ip]; !ok {
			continue
		}
		if ip == gatewayIP {
			found = true
		}
		if ip == r.vantage || ip == gatewayIP {
			continue
		}
		if r.subnet.IsValid() && !r.inLocalSubnet(ip) {
			continue
		}
		local = append(local, ip)
	}
	if !found {
		return errors.New(errors.CodeClassificationAmbiguity, "gateway is not among discovered hosts").
			WithTarget(gatewayIP).WithOp("classify gateway")
	}

	for _, n := range r.nodes {
		if n.NodeType == domain.NodeTypeGateway {
			n.NodeType = domain.NodeTypeNone
		}
	}

	gw := r.nodes[gatewayIP]
	gw.NodeType = domain.NodeTypeGateway
	gw.ConnectedTo = domain.NewAdjacencySet(local...)

	for _, ip := range local {
		r.nodes[ip].ConnectedTo = domain.NewAdjacencySet(gatewayIP)
	}

	if gatewayIP != r.vantage {
		v := r.nodes[r.vantage]
		for _, ip := range local {
			delete(v.ConnectedTo, ip)
		}
		v.AddEdge(gatewayIP)
	}

	r.gateway = gatewayIP
	r.deferred = make(map[string]struct{})
	return nil
}

// FlushDeferred adds the held-back vantage edges as observed. Used when no
// gateway could be classified in a cycle. Returns the number of edges added.
func (r *Registry) FlushDeferred() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.deferred) == 0 {
		return 0
	}
	v := r.nodes[r.vantage]
	added := 0
	for ip := range r.deferred {
		if v.AddEdge(ip) {
			added++
		}
	}
	r.deferred = make(map[string]struct{})
	return added
}

// Enrich applies fn to the node for ip under the registry lock. The node's
// IP cannot be changed by fn.
func (r *Registry) Enrich(ip string, fn func(n *domain.Node)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[ip]
	if !ok {
		return errors.New(errors.CodeNotFound, "node not registered").WithTarget(ip).WithOp("enrich")
	}
	fn(n)
	n.IP = ip
	return nil
}

// Touch marks ip as seen now with the given status
func (r *Registry) Touch(ip string, status domain.NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.nodes[ip]; ok {
		n.Touch(r.now())
		if status != "" && status != domain.NodeStatusUnknown {
			n.Status = status
		}
	}
}

// Snapshot returns deep copies of all nodes ordered by address
func (r *Registry) Snapshot() []domain.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return domain.LessIP(out[i].IP, out[j].IP) })
	return out
}

// Len returns the number of registered nodes
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Vantage returns a copy of the vantage node
func (r *Registry) Vantage() domain.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[r.vantage].Clone()
}

// Gateway returns the classified gateway IP, if any
func (r *Registry) Gateway() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gateway, r.gateway != ""
}

// LocalSubnet returns the vantage point's subnet
func (r *Registry) LocalSubnet() netip.Prefix {
	return r.subnet
}

// Pending returns the number of deferred vantage edges
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deferred)
}

func (r *Registry) validIP(ip, op string) bool {
	if _, err := netip.ParseAddr(ip); err != nil {
		r.violation("%s: invalid node address %q", op, ip)
		return false
	}
	return true
}

func (r *Registry) validHop(h domain.Hop) bool {
	if _, err := netip.ParseAddr(h.IP); err != nil {
		r.violation("merge trace: invalid hop address %q", h.IP)
		return false
	}
	if h.TTL <= 0 {
		r.violation("merge trace: hop %s has non-positive ttl %d", h.IP, h.TTL)
		return false
	}
	return true
}

// violation reports a broken registry invariant. Callers hold the lock.
func (r *Registry) violation(format string, args ...any) {
	err := errors.New(errors.CodeValidation, fmt.Sprintf(format, args...)).WithOp("registry")
	if r.strict {
		panic(err)
	}
	r.logger.Error("registry invariant violated", "error", err)
}
