package ptg

import "sort"

const areaIterations = 20

// Areas groups pages into functional areas by label propagation over the
// undirected transition graph. Edges and effective operations both count;
// singletons are dropped. Areas and their members are sorted by index.
func (g *Graph) Areas() [][]int {
	g.mu.RLock()
	n := len(g.nodes)
	adj := make([]map[int]int, n)
	for i := range adj {
		adj[i] = make(map[int]int)
	}
	link := func(a, b int) {
		if a == b {
			return
		}
		adj[a][b]++
		adj[b][a]++
	}
	for src, a := range g.adj {
		for _, dst := range a.order {
			link(src, dst)
		}
	}
	for _, node := range g.nodes {
		for _, op := range node.Operations {
			if op.Dest != Ineffective {
				link(node.Index, op.Dest)
			}
		}
	}
	g.mu.RUnlock()

	if n == 0 {
		return nil
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}
	for iter := 0; iter < areaIterations; iter++ {
		changed := 0
		for u := 0; u < n; u++ {
			if len(adj[u]) == 0 {
				continue
			}
			counts := make(map[int]int)
			best := 0
			for v, w := range adj[u] {
				counts[labels[v]] += w
				if counts[labels[v]] > best {
					best = counts[labels[v]]
				}
			}
			// keep the current label on a tie, else take the largest
			next := -1
			for l, c := range counts {
				if c != best {
					continue
				}
				if l == labels[u] {
					next = l
					break
				}
				if l > next {
					next = l
				}
			}
			if next != labels[u] {
				labels[u] = next
				changed++
			}
		}
		if changed == 0 {
			break
		}
	}

	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	var areas [][]int
	for _, members := range groups {
		if len(members) >= 2 {
			areas = append(areas, members)
		}
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i][0] < areas[j][0] })
	return areas
}
