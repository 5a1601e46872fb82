package distance

import (
	"math"

	"github.com/agenthands/ptgbot/internal/core/uitree"
)

// postorder flattens a tree for Zhang-Shasha. Index 0 is unused so the
// algorithm can stay 1-based.
type postorder struct {
	nodes    []*uitree.Node
	leftmost []int
	keyroots []int
}

func index(root *uitree.Node) postorder {
	p := postorder{nodes: []*uitree.Node{nil}, leftmost: []int{0}}
	if root == nil {
		return p
	}
	var visit func(n *uitree.Node) int
	visit = func(n *uitree.Node) int {
		first := 0
		for i, c := range n.Children {
			lm := visit(c)
			if i == 0 {
				first = lm
			}
		}
		p.nodes = append(p.nodes, n)
		idx := len(p.nodes) - 1
		if first == 0 {
			first = idx
		}
		p.leftmost = append(p.leftmost, first)
		return first
	}
	visit(root)

	// A keyroot is the highest node sharing its leftmost leaf.
	seen := make(map[int]bool)
	for i := len(p.nodes) - 1; i >= 1; i-- {
		if !seen[p.leftmost[i]] {
			seen[p.leftmost[i]] = true
			p.keyroots = append(p.keyroots, i)
		}
	}
	for i, j := 0, len(p.keyroots)-1; i < j; i, j = i+1, j-1 {
		p.keyroots[i], p.keyroots[j] = p.keyroots[j], p.keyroots[i]
	}
	return p
}

func (p postorder) size() int { return len(p.nodes) - 1 }

func zhangShasha(a, b *uitree.Node, indel func(*uitree.Node) float64, update func(x, y *uitree.Node) float64) float64 {
	A, B := index(a), index(b)
	n, m := A.size(), B.size()

	if n == 0 || m == 0 {
		total := 0.0
		for i := 1; i <= n; i++ {
			total += indel(A.nodes[i])
		}
		for j := 1; j <= m; j++ {
			total += indel(B.nodes[j])
		}
		return total
	}

	td := make([][]float64, n+1)
	for i := range td {
		td[i] = make([]float64, m+1)
	}

	for _, i := range A.keyroots {
		for _, j := range B.keyroots {
			forestDist(A, B, i, j, td, indel, update)
		}
	}
	return td[n][m]
}

func forestDist(A, B postorder, i, j int, td [][]float64, indel func(*uitree.Node) float64, update func(x, y *uitree.Node) float64) {
	li, lj := A.leftmost[i], B.leftmost[j]
	ioff, joff := li-1, lj-1
	rows, cols := i-ioff+1, j-joff+1

	fd := make([][]float64, rows)
	for x := range fd {
		fd[x] = make([]float64, cols)
	}
	for x := 1; x < rows; x++ {
		fd[x][0] = fd[x-1][0] + indel(A.nodes[x+ioff])
	}
	for y := 1; y < cols; y++ {
		fd[0][y] = fd[0][y-1] + indel(B.nodes[y+joff])
	}

	for x := 1; x < rows; x++ {
		for y := 1; y < cols; y++ {
			ax, by := A.nodes[x+ioff], B.nodes[y+joff]
			del := fd[x-1][y] + indel(ax)
			ins := fd[x][y-1] + indel(by)
			if A.leftmost[x+ioff] == li && B.leftmost[y+joff] == lj {
				sub := fd[x-1][y-1] + update(ax, by)
				fd[x][y] = math.Min(del, math.Min(ins, sub))
				td[x+ioff][y+joff] = fd[x][y]
				continue
			}
			p := A.leftmost[x+ioff] - 1 - ioff
			q := B.leftmost[y+joff] - 1 - joff
			fd[x][y] = math.Min(del, math.Min(ins, fd[p][q]+td[x+ioff][y+joff]))
		}
	}
}
