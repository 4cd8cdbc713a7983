package mot3d

import "math"

// hungarianAssign solves the rectangular minimum-cost partial assignment problem for n×m cost matrix
// using Kuhn-Munkres with potentials (Jonker-Volgenant variant), O(dim³).
//
// Leaving a row or a column unmatched costs nothing, so a pair is taken only when it lowers the total.
// Cells with feasible[i][j] == false and cells with positive cost are never returned: both are
// solved as zero-cost cells, same as zero-cost dummy cells which pad the matrix to square.
//
// Returns assignments[i] = column index assigned to row i, or -1 if row i stays unassigned.
// Among equal-cost alternatives the lowest column index wins.
func hungarianAssign(cost [][]float64, feasible [][]bool) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	dim := maxInt(n, m)
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		if i >= n {
			continue
		}
		for j := 0; j < m; j++ {
			if feasible[i][j] && cost[i][j] < 0 {
				c[i][j] = cost[i][j]
			}
		}
	}

	// Uses 1-indexed arrays internally for cleaner index arithmetic.
	inf := math.Inf(1)
	u := make([]float64, dim+1) // Row potentials
	v := make([]float64, dim+1) // Column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0 // Virtual column
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Augment along the path.
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	for j := 1; j <= m; j++ {
		row := p[j] - 1
		if row >= 0 && row < n && feasible[row][j-1] && cost[row][j-1] <= 0 {
			result[row] = j - 1
		}
	}
	return result
}
