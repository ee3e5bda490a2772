package formz

// depGraph tracks computed-value dependencies between field paths so a
// computation chain can be refused the moment a registration would close a
// cycle, and so chained computations propagate in dependency order.
// Callers hold the form lock.
type depGraph struct {
	nodes map[string]*depNode
}

type depNode struct {
	id         string
	deps       map[string]*depNode
	dependents map[string]*depNode
	// depOrder holds dependent ids in edge insertion order so chained
	// computations push to their targets deterministically.
	depOrder []string
}

func newDepGraph() *depGraph {
	return &depGraph{nodes: make(map[string]*depNode)}
}

func (g *depGraph) addNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &depNode{
		id:         id,
		deps:       make(map[string]*depNode),
		dependents: make(map[string]*depNode),
	}
}

// addEdge records that toID is computed from fromID. Both nodes must
// already exist.
func (g *depGraph) addEdge(fromID, toID string) error {
	if fromID == toID {
		return configErr("register computation", fromID, "field computed from itself")
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return configErr("register computation", fromID, "unknown source")
	}
	to, ok := g.nodes[toID]
	if !ok {
		return configErr("register computation", toID, "unknown target")
	}
	to.deps[fromID] = from
	if _, ok := from.dependents[toID]; !ok {
		from.depOrder = append(from.depOrder, toID)
	}
	from.dependents[toID] = to
	return nil
}

func (g *depGraph) removeEdge(fromID, toID string) {
	if from, ok := g.nodes[fromID]; ok {
		if _, had := from.dependents[toID]; had {
			delete(from.dependents, toID)
			for i, id := range from.depOrder {
				if id == toID {
					from.depOrder = append(from.depOrder[:i], from.depOrder[i+1:]...)
					break
				}
			}
		}
	}
	if to, ok := g.nodes[toID]; ok {
		delete(to.deps, fromID)
	}
}

// detectCycle runs a depth-first search with temporary and permanent
// marks. It returns the id of a node on the first cycle found, or "".
func (g *depGraph) detectCycle() string {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var cycleAt string
	var visit func(n *depNode) bool
	visit = func(n *depNode) bool {
		if permanent[n.id] {
			return true
		}
		if temporary[n.id] {
			cycleAt = n.id
			return false
		}
		temporary[n.id] = true
		for _, id := range n.depOrder {
			if !visit(n.dependents[id]) {
				return false
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return true
	}

	for _, n := range g.nodes {
		if !permanent[n.id] {
			if !visit(n) {
				return cycleAt
			}
		}
	}
	return ""
}

// downstream returns the ids of direct dependents of id, in edge
// insertion order.
func (g *depGraph) downstream(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.depOrder...)
}
