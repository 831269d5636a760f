package engine

import "sort"

// DependencyNode tracks one cell's edges in the dependency graph.
type DependencyNode struct {
	Addr CellAddress

	// CellPrecedents are cells this cell's formula reads.
	CellPrecedents map[CellAddress]struct{}
	// CellDependents are cells whose formulas read this cell.
	CellDependents map[CellAddress]struct{}
	// RangePrecedents are ranges this cell's formula reads.
	RangePrecedents map[string]RangeAddress

	// HasFormula marks nodes that own a formula, as opposed to nodes
	// that exist only because some formula points at them.
	HasFormula bool
	IsDirty    bool
}

// NewDependencyNode creates a node for the given address.
func NewDependencyNode(addr CellAddress) *DependencyNode {
	return &DependencyNode{
		Addr:            addr,
		CellPrecedents:  make(map[CellAddress]struct{}),
		CellDependents:  make(map[CellAddress]struct{}),
		RangePrecedents: make(map[string]RangeAddress),
	}
}

// DependencyGraph tracks which cells feed which formulas and which
// cells await recalculation.
type DependencyGraph struct {
	nodes map[CellAddress]*DependencyNode

	// rangeObservers maps a normalized range to the formula cells
	// observing it. A write to any cell inside the range dirties all
	// of its observers.
	rangeObservers map[string]map[CellAddress]struct{}
	rangeBounds    map[string]RangeAddress

	dirtySet map[CellAddress]struct{}
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[CellAddress]*DependencyNode),
		rangeObservers: make(map[string]map[CellAddress]struct{}),
		rangeBounds:    make(map[string]RangeAddress),
		dirtySet:       make(map[CellAddress]struct{}),
	}
}

// GetOrCreateNode gets an existing node or creates a new one.
func (dg *DependencyGraph) GetOrCreateNode(addr CellAddress) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}
	node := NewDependencyNode(addr)
	dg.nodes[addr] = node
	return node
}

// GetNode retrieves a node if it exists.
func (dg *DependencyGraph) GetNode(addr CellAddress) (*DependencyNode, bool) {
	node, exists := dg.nodes[addr]
	return node, exists
}

// SetFormula marks a node as owning a formula (creates node if needed).
func (dg *DependencyGraph) SetFormula(addr CellAddress, hasFormula bool) {
	if !hasFormula {
		if node, exists := dg.nodes[addr]; exists {
			node.HasFormula = false
			dg.cleanupNodeIfEmpty(addr)
		}
		return
	}
	dg.GetOrCreateNode(addr).HasFormula = true
}

// AddCellDependency records that from's formula reads to.
func (dg *DependencyGraph) AddCellDependency(from, to CellAddress) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	fromNode.CellPrecedents[to] = struct{}{}
	toNode.CellDependents[from] = struct{}{}
}

// AddRangeDependency records that from's formula reads a range.
func (dg *DependencyGraph) AddRangeDependency(from CellAddress, bounds RangeAddress) {
	bounds = bounds.Normalize()
	key := bounds.String()
	node := dg.GetOrCreateNode(from)
	node.RangePrecedents[key] = bounds

	if dg.rangeObservers[key] == nil {
		dg.rangeObservers[key] = make(map[CellAddress]struct{})
		dg.rangeBounds[key] = bounds
	}
	dg.rangeObservers[key][from] = struct{}{}
}

// ClearDependencies removes all precedent edges of one cell, keeping
// its dependents intact. Called before re-registering a rewritten
// formula.
func (dg *DependencyGraph) ClearDependencies(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	for precedentAddr := range node.CellPrecedents {
		if precedentNode, ok := dg.nodes[precedentAddr]; ok {
			delete(precedentNode.CellDependents, addr)
			dg.cleanupNodeIfEmpty(precedentAddr)
		}
	}
	node.CellPrecedents = make(map[CellAddress]struct{})

	for key := range node.RangePrecedents {
		if observers, ok := dg.rangeObservers[key]; ok {
			delete(observers, addr)
			if len(observers) == 0 {
				delete(dg.rangeObservers, key)
				delete(dg.rangeBounds, key)
			}
		}
	}
	node.RangePrecedents = make(map[string]RangeAddress)
}

// RemoveNode removes a node and all its dependencies.
func (dg *DependencyGraph) RemoveNode(addr CellAddress) bool {
	node, exists := dg.nodes[addr]
	if !exists {
		return false
	}

	dg.ClearDependencies(addr)

	// do not cleanup dependent nodes - they might have formulas
	for dependentAddr := range node.CellDependents {
		if dependentNode, ok := dg.nodes[dependentAddr]; ok {
			delete(dependentNode.CellPrecedents, addr)
		}
	}

	delete(dg.dirtySet, addr)
	delete(dg.nodes, addr)
	return true
}

// cleanupNodeIfEmpty removes a node if it has no dependencies or formula
func (dg *DependencyGraph) cleanupNodeIfEmpty(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	if node.HasFormula ||
		len(node.CellPrecedents) > 0 ||
		len(node.CellDependents) > 0 ||
		len(node.RangePrecedents) > 0 {
		return
	}

	delete(dg.nodes, addr)
	delete(dg.dirtySet, addr)
}

// MarkDirty marks a cell and everything downstream of it dirty,
// including formulas observing a range that contains it.
func (dg *DependencyGraph) MarkDirty(addr CellAddress) {
	if _, already := dg.dirtySet[addr]; already {
		return
	}
	dg.dirtySet[addr] = struct{}{}

	if node, exists := dg.nodes[addr]; exists {
		node.IsDirty = true
		for dependentAddr := range node.CellDependents {
			dg.MarkDirty(dependentAddr)
		}
	}

	for key, bounds := range dg.rangeBounds {
		if !bounds.Contains(addr) {
			continue
		}
		for observerAddr := range dg.rangeObservers[key] {
			dg.MarkDirty(observerAddr)
		}
	}
}

// ClearAllDirty clears all dirty flags after a recalculation pass.
func (dg *DependencyGraph) ClearAllDirty() {
	for addr := range dg.dirtySet {
		if node, exists := dg.nodes[addr]; exists {
			node.IsDirty = false
		}
	}
	dg.dirtySet = make(map[CellAddress]struct{})
}

// DirtyCells returns the dirty formula cells that need recalculation.
func (dg *DependencyGraph) DirtyCells() []CellAddress {
	result := make([]CellAddress, 0, len(dg.dirtySet))
	for addr := range dg.dirtySet {
		if node, exists := dg.nodes[addr]; exists && node.HasFormula {
			result = append(result, addr)
		}
	}
	return result
}

// GetDirectDependents returns cells directly depending on this cell.
func (dg *DependencyGraph) GetDirectDependents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	result := make([]CellAddress, 0, len(node.CellDependents))
	for dependentAddr := range node.CellDependents {
		result = append(result, dependentAddr)
	}
	return result
}

// GetDirectPrecedents returns cells this cell directly depends on.
func (dg *DependencyGraph) GetDirectPrecedents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	result := make([]CellAddress, 0, len(node.CellPrecedents))
	for precedentAddr := range node.CellPrecedents {
		result = append(result, precedentAddr)
	}
	return result
}

// NodeCount returns the number of nodes in the graph.
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// Clear removes all nodes and dependencies from the graph.
func (dg *DependencyGraph) Clear() {
	dg.nodes = make(map[CellAddress]*DependencyNode)
	dg.rangeObservers = make(map[string]map[CellAddress]struct{})
	dg.rangeBounds = make(map[string]RangeAddress)
	dg.dirtySet = make(map[CellAddress]struct{})
}

// precedentsWithin lists addr's precedents restricted to the subset. A
// range precedent counts as an edge from every subset cell inside the
// range.
func (dg *DependencyGraph) precedentsWithin(addr CellAddress, subset map[CellAddress]struct{}) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	var precedents []CellAddress
	for precedentAddr := range node.CellPrecedents {
		if _, in := subset[precedentAddr]; in {
			precedents = append(precedents, precedentAddr)
		}
	}
	for _, bounds := range node.RangePrecedents {
		for candidate := range subset {
			if candidate != addr && bounds.Contains(candidate) {
				precedents = append(precedents, candidate)
			}
		}
	}
	return precedents
}

// CalculationOrder orders the given cells so every cell comes after the
// cells it reads, using Kahn's algorithm over the induced subgraph. The
// second result holds the cells that could not be ordered: members of a
// reference cycle plus anything downstream of one inside the subset.
func (dg *DependencyGraph) CalculationOrder(cells []CellAddress) (order, blocked []CellAddress) {
	subset := make(map[CellAddress]struct{}, len(cells))
	for _, addr := range cells {
		subset[addr] = struct{}{}
	}

	indegree := make(map[CellAddress]int, len(cells))
	dependents := make(map[CellAddress][]CellAddress, len(cells))
	for addr := range subset {
		precedents := dg.precedentsWithin(addr, subset)
		indegree[addr] = len(precedents)
		for _, precedentAddr := range precedents {
			dependents[precedentAddr] = append(dependents[precedentAddr], addr)
		}
	}

	var queue []CellAddress
	for addr, degree := range indegree {
		if degree == 0 {
			queue = append(queue, addr)
		}
	}
	sortAddresses(queue)

	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		order = append(order, addr)

		next := dependents[addr]
		sortAddresses(next)
		for _, dependentAddr := range next {
			indegree[dependentAddr]--
			if indegree[dependentAddr] == 0 {
				queue = append(queue, dependentAddr)
			}
		}
	}

	if len(order) < len(subset) {
		ordered := make(map[CellAddress]struct{}, len(order))
		for _, addr := range order {
			ordered[addr] = struct{}{}
		}
		for addr := range subset {
			if _, ok := ordered[addr]; !ok {
				blocked = append(blocked, addr)
			}
		}
		sortAddresses(blocked)
	}
	return order, blocked
}

// CycleMembers narrows a blocked set down to the cells actually on a
// cycle, using Tarjan's strongly connected components over the blocked
// subgraph. Cells merely downstream of a cycle are excluded so they
// still evaluate and see the cycle error as a propagated value.
func (dg *DependencyGraph) CycleMembers(blocked []CellAddress) map[CellAddress]struct{} {
	subset := make(map[CellAddress]struct{}, len(blocked))
	for _, addr := range blocked {
		subset[addr] = struct{}{}
	}

	index := 0
	indices := make(map[CellAddress]int)
	lowlink := make(map[CellAddress]int)
	onStack := make(map[CellAddress]bool)
	var stack []CellAddress
	members := make(map[CellAddress]struct{})

	var strongConnect func(addr CellAddress)
	strongConnect = func(addr CellAddress) {
		indices[addr] = index
		lowlink[addr] = index
		index++
		stack = append(stack, addr)
		onStack[addr] = true

		selfLoop := false
		for _, precedentAddr := range dg.precedentsWithin(addr, subset) {
			if precedentAddr == addr {
				selfLoop = true
				continue
			}
			if _, seen := indices[precedentAddr]; !seen {
				strongConnect(precedentAddr)
				if lowlink[precedentAddr] < lowlink[addr] {
					lowlink[addr] = lowlink[precedentAddr]
				}
			} else if onStack[precedentAddr] {
				if indices[precedentAddr] < lowlink[addr] {
					lowlink[addr] = indices[precedentAddr]
				}
			}
		}

		if lowlink[addr] == indices[addr] {
			var component []CellAddress
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == addr {
					break
				}
			}
			if len(component) > 1 || selfLoop {
				for _, member := range component {
					members[member] = struct{}{}
				}
			}
		}
	}

	for _, addr := range blocked {
		if _, seen := indices[addr]; !seen {
			strongConnect(addr)
		}
	}
	return members
}

// sortAddresses orders addresses by sheet, then row, then column, so
// recalculation order is deterministic.
func sortAddresses(addrs []CellAddress) {
	sort.Slice(addrs, func(i, j int) bool {
		a, b := addrs[i], addrs[j]
		if a.Sheet != b.Sheet {
			return a.Sheet < b.Sheet
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
}
