// Package cluster groups detector digitization cells into clusters by
// connected-component labeling on the two-dimensional channel grid. Cells
// below an energy threshold are excluded, and cells landing on the same
// channel pair are merged before labeling.
package cluster

// Cell is one fired readout channel with its deposited energy.
type Cell struct {
	Channel0 int     `json:"channel0"` // channel index in the first grid direction
	Channel1 int     `json:"channel1"` // channel index in the second grid direction
	Energy   float64 `json:"energy"`   // deposited energy, arbitrary units
}

type channelKey struct {
	c0, c1 int
}

// CreateClusters labels the given cells into connected clusters. Two cells
// are neighbours when their channels differ by at most one in a single
// direction; with commonCorner set, diagonal neighbours merge as well.
// Cells with energy below energyCut are dropped before labeling.
// Duplicate cells on one channel pair are merged by summing energy. The
// cell order within a cluster and the cluster order are deterministic for
// a fixed input order.
func CreateClusters(cells []Cell, commonCorner bool, energyCut float64) [][]Cell {
	merged := make(map[channelKey]Cell, len(cells))
	order := make([]channelKey, 0, len(cells))
	for _, c := range cells {
		key := channelKey{c.Channel0, c.Channel1}
		if existing, ok := merged[key]; ok {
			existing.Energy += c.Energy
			merged[key] = existing
			continue
		}
		merged[key] = c
		order = append(order, key)
	}

	// Apply the energy cut after merging so split deposits on one
	// channel are judged by their summed energy.
	surviving := make(map[channelKey]Cell, len(merged))
	for key, c := range merged {
		if c.Energy >= energyCut {
			surviving[key] = c
		}
	}

	var clusters [][]Cell
	visited := make(map[channelKey]bool, len(surviving))
	for _, seed := range order {
		if visited[seed] {
			continue
		}
		if _, ok := surviving[seed]; !ok {
			continue
		}

		// BFS over the channel grid from the seed cell.
		var group []Cell
		queue := []channelKey{seed}
		visited[seed] = true
		for len(queue) > 0 {
			key := queue[0]
			queue = queue[1:]
			group = append(group, surviving[key])

			for d0 := -1; d0 <= 1; d0++ {
				for d1 := -1; d1 <= 1; d1++ {
					if d0 == 0 && d1 == 0 {
						continue
					}
					if !commonCorner && d0 != 0 && d1 != 0 {
						continue
					}
					nb := channelKey{key.c0 + d0, key.c1 + d1}
					if visited[nb] {
						continue
					}
					if _, ok := surviving[nb]; !ok {
						continue
					}
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		clusters = append(clusters, group)
	}
	return clusters
}

// TotalEnergy sums the deposited energy of a cluster.
func TotalEnergy(cluster []Cell) float64 {
	total := 0.0
	for _, c := range cluster {
		total += c.Energy
	}
	return total
}
