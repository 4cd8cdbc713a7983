package mot3d

import (
	"math"
	"math/rand"
	"testing"

	"github.com/arthurkushman/go-hungarian"
)

// bruteForceAssign returns minimal total cost among all partial assignments of feasible pairs, including the empty one
func bruteForceAssign(cost [][]float64, feasible [][]bool) float64 {
	n := len(cost)
	m := len(cost[0])
	best := math.Inf(1)
	used := make([]bool, m)
	var walk func(row int, total float64)
	walk = func(row int, total float64) {
		if row == n {
			best = math.Min(best, total)
			return
		}
		walk(row+1, total)
		for j := 0; j < m; j++ {
			if used[j] || !feasible[row][j] {
				continue
			}
			used[j] = true
			walk(row+1, total+cost[row][j])
			used[j] = false
		}
	}
	walk(0, 0)
	return best
}

func assignmentTotal(t *testing.T, assignments []int, cost [][]float64, feasible [][]bool) (int, float64) {
	count, total := 0, 0.0
	seen := make(map[int]bool)
	for i, j := range assignments {
		if j < 0 {
			continue
		}
		if !feasible[i][j] {
			t.Errorf("Infeasible pair (%d, %d) assigned", i, j)
		}
		if seen[j] {
			t.Errorf("Column %d assigned twice", j)
		}
		seen[j] = true
		count++
		total += cost[i][j]
	}
	return count, total
}

func allFeasible(n, m int) [][]bool {
	feasible := make([][]bool, n)
	for i := range feasible {
		feasible[i] = make([]bool, m)
		for j := range feasible[i] {
			feasible[i][j] = true
		}
	}
	return feasible
}

func TestHungarianAssignSquare(t *testing.T) {
	cost := [][]float64{
		{-4, -1, -3},
		{-2, 0, -5},
		{-3, -2, -2},
	}
	assignments := hungarianAssign(cost, allFeasible(3, 3))
	expected := []int{0, 2, 1}
	for i := range expected {
		if assignments[i] != expected[i] {
			t.Errorf("Row %d: expected column %d, got %d", i, expected[i], assignments[i])
		}
	}
}

func TestHungarianAssignRectangular(t *testing.T) {
	// More detections than tracks
	cost := [][]float64{
		{-0.9, -0.1, -0.5, -0.2},
		{-0.8, -0.7, -0.1, -0.3},
	}
	assignments := hungarianAssign(cost, allFeasible(2, 4))
	if assignments[0] != 0 || assignments[1] != 1 {
		t.Errorf("Expected [0 1], got %v", assignments)
	}

	// More tracks than detections
	transposed := [][]float64{
		{-0.9, -0.8},
		{-0.1, -0.7},
		{-0.5, -0.1},
	}
	assignments = hungarianAssign(transposed, allFeasible(3, 2))
	if assignments[0] != 0 || assignments[1] != 1 || assignments[2] != -1 {
		t.Errorf("Expected [0 1 -1], got %v", assignments)
	}
}

func TestHungarianAssignInfeasible(t *testing.T) {
	cost := [][]float64{
		{-0.9, -0.05},
		{-0.05, 0},
	}
	feasible := [][]bool{
		{true, true},
		{true, false},
	}
	// Two weak pairs (-0.1) must not push the strong pair (-0.9) out of assignment
	assignments := hungarianAssign(cost, feasible)
	if assignments[0] != 0 || assignments[1] != -1 {
		t.Errorf("Expected [0 -1], got %v", assignments)
	}

	none := [][]bool{{false, false}, {false, false}}
	assignments = hungarianAssign(cost, none)
	if assignments[0] != -1 || assignments[1] != -1 {
		t.Errorf("Expected no assignments, got %v", assignments)
	}
}

func TestHungarianAssignPositiveCost(t *testing.T) {
	// Unmatched row is cheaper than any positive pair
	cost := [][]float64{
		{0.5, -0.2},
		{0.1, 0.3},
	}
	assignments := hungarianAssign(cost, allFeasible(2, 2))
	if assignments[0] != 1 || assignments[1] != -1 {
		t.Errorf("Expected [1 -1], got %v", assignments)
	}
	assignments = hungarianAssign([][]float64{{0.5}}, allFeasible(1, 1))
	if assignments[0] != -1 {
		t.Errorf("Expected no assignment for positive cost, got %v", assignments)
	}
	// Zero cost pair is neither better nor worse than leaving both sides unmatched
	assignments = hungarianAssign([][]float64{{0}}, allFeasible(1, 1))
	if assignments[0] != 0 {
		t.Errorf("Expected zero cost pair to be kept, got %v", assignments)
	}
}

func TestHungarianAssignTies(t *testing.T) {
	cost := [][]float64{{-0.5, -0.5, -0.5}}
	assignments := hungarianAssign(cost, allFeasible(1, 3))
	if assignments[0] != 0 {
		t.Errorf("Expected lowest column on tie, got %d", assignments[0])
	}
	square := [][]float64{{-1, -1}, {-1, -1}}
	assignments = hungarianAssign(square, allFeasible(2, 2))
	if assignments[0] != 0 || assignments[1] != 1 {
		t.Errorf("Expected [0 1] on tie, got %v", assignments)
	}
}

func TestHungarianAssignEmpty(t *testing.T) {
	if assignments := hungarianAssign([][]float64{}, [][]bool{}); assignments != nil {
		t.Errorf("Expected nil for empty matrix, got %v", assignments)
	}
	assignments := hungarianAssign([][]float64{{}, {}}, [][]bool{{}, {}})
	if len(assignments) != 2 || assignments[0] != -1 || assignments[1] != -1 {
		t.Errorf("Expected [-1 -1], got %v", assignments)
	}
}

func TestHungarianAssignBruteForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for iter := 0; iter < 300; iter++ {
		n := 1 + rnd.Intn(5)
		m := 1 + rnd.Intn(5)
		cost := make([][]float64, n)
		feasible := make([][]bool, n)
		for i := 0; i < n; i++ {
			cost[i] = make([]float64, m)
			feasible[i] = make([]bool, m)
			for j := 0; j < m; j++ {
				cost[i][j] = rnd.Float64()*4 - 2
				feasible[i][j] = rnd.Float64() < 0.7
			}
		}
		expectedCost := bruteForceAssign(cost, feasible)
		_, total := assignmentTotal(t, hungarianAssign(cost, feasible), cost, feasible)
		if math.Abs(total-expectedCost) > eps {
			t.Errorf("Iteration %d: expected total cost %f, got %f", iter, expectedCost, total)
		}
	}
}

func TestHungarianAssignAgainstReference(t *testing.T) {
	matrices := [][][]float64{
		{
			{7, 53, 183, 439},
			{497, 383, 563, 79},
			{627, 343, 773, 959},
			{447, 283, 463, 29},
		},
		{
			{0.31, 0.92, 0.15, 0.47},
			{0.83, 0.05, 0.66, 0.21},
			{0.58, 0.74, 0.39, 0.12},
			{0.27, 0.44, 0.88, 0.63},
		},
	}
	for k, cost := range matrices {
		n := len(cost)
		// Convert costs to strictly positive profits for maximizing solver.
		// Negated profits are strictly negative, so the optimal partial assignment is a full one
		upper := 0.0
		for i := range cost {
			for j := range cost[i] {
				upper = math.Max(upper, cost[i][j])
			}
		}
		profit := make([][]float64, n)
		shifted := make([][]float64, n)
		for i := range cost {
			profit[i] = make([]float64, n)
			shifted[i] = make([]float64, n)
			for j := range cost[i] {
				profit[i][j] = upper + 1 - cost[i][j]
				shifted[i][j] = -profit[i][j]
			}
		}
		reference := hungarian.SolveMax(profit)
		referencePairs, referenceTotal := 0, 0.0
		for i, row := range reference {
			for j := range row {
				referencePairs++
				referenceTotal += cost[i][j]
			}
		}
		assignments := hungarianAssign(shifted, allFeasible(n, n))
		count, total := assignmentTotal(t, assignments, cost, allFeasible(n, n))
		if count != n {
			t.Errorf("Matrix %d: expected %d pairs, got %d", k, n, count)
		}
		bruteCost := bruteForceAssign(shifted, allFeasible(n, n)) + float64(n)*(upper+1)
		if math.Abs(total-bruteCost) > eps {
			t.Errorf("Matrix %d: expected total cost %f, got %f", k, bruteCost, total)
		}
		if referencePairs == n && total > referenceTotal+eps {
			t.Errorf("Matrix %d: reference solver found cheaper assignment %f than %f", k, referenceTotal, total)
		}
	}
}
