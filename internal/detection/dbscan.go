package detection

const noiseLabel = -1

// dbscan assigns a cluster id to each of n points, or noiseLabel. Points
// are neighbours when dist(i, j) <= eps; a point is core when it has at
// least minSamples neighbours, itself included. Clusters are numbered in
// order of their first core point, and a border point joins the first
// cluster that reaches it.
func dbscan(n int, dist func(i, j int) float64, eps float64, minSamples int) []int {
	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || dist(i, j) <= eps {
				neighbours[i] = append(neighbours[i], j)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = noiseLabel
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != noiseLabel || len(neighbours[i]) < minSamples {
			continue
		}
		labels[i] = cluster
		stack := []int{i}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(neighbours[p]) < minSamples {
				continue
			}
			for _, q := range neighbours[p] {
				if labels[q] != noiseLabel {
					continue
				}
				labels[q] = cluster
				if len(neighbours[q]) >= minSamples {
					stack = append(stack, q)
				}
			}
		}
		cluster++
	}
	return labels
}
