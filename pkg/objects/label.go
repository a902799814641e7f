package objects

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"vesseldots/internal/models"
)

// backward holds the 13 neighbour offsets (dx, dy, dz) of the 26-neighbourhood
// already visited in a (z, y, x) scan.
var backward = func() [][3]int {
	var offs [][3]int
	for dz := -1; dz <= 0; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz == 0 && (dy > 0 || (dy == 0 && dx >= 0)) {
					continue
				}
				offs = append(offs, [3]int{dx, dy, dz})
			}
		}
	}
	return offs
}()

// Label extracts the 26-connected foreground components of m. Labels start at
// 1 and follow the (z, y, x) scan order of each component's first voxel.
func Label(m *models.Mask) *Population {
	return label(m.Width, m.Height, m.Depth, m.Calibration, func(i int) bool { return m.Data[i] != 0 })
}

// LabelNonZero treats every nonzero voxel of a label volume as foreground,
// whatever its value, and extracts the 26-connected components like Label.
func LabelNonZero(w, h, d int, cal models.Calibration, labels []int32) *Population {
	return label(w, h, d, cal, func(i int) bool { return labels[i] != 0 })
}

func label(w, h, d int, cal models.Calibration, fg func(i int) bool) *Population {
	pop := NewPopulation(w, h, d, cal)
	n := w * h * d
	if n == 0 {
		return pop
	}

	// first pass: provisional labels, 0 reserved for background. Labels that
	// touch are joined by an edge of the equivalence graph.
	prov := make([]int32, n)
	equiv := simple.NewUndirectedGraph()
	var numProv int32
	plane := w * h
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := z*plane + y*w + x
				if !fg(i) {
					continue
				}
				var cur int32
				for _, o := range backward {
					nx, ny, nz := x+o[0], y+o[1], z+o[2]
					if nx < 0 || nx >= w || ny < 0 || ny >= h || nz < 0 {
						continue
					}
					nl := prov[nz*plane+ny*w+nx]
					if nl == 0 {
						continue
					}
					if cur == 0 {
						cur = nl
					} else if nl != cur && !equiv.HasEdgeBetween(int64(cur), int64(nl)) {
						equiv.SetEdge(equiv.NewEdge(simple.Node(cur), simple.Node(nl)))
					}
				}
				if cur == 0 {
					numProv++
					cur = numProv
					equiv.AddNode(simple.Node(cur))
				}
				prov[i] = cur
			}
		}
	}

	// every provisional label maps to its connected component
	component := make([]int32, numProv+1)
	components := topo.ConnectedComponents(equiv)
	for c, nodes := range components {
		for _, node := range nodes {
			component[node.ID()] = int32(c)
		}
	}

	// second pass: resolve to final labels numbered by first appearance
	final := make([]int32, len(components))
	var next int32
	for i, l := range prov {
		if l == 0 {
			continue
		}
		c := component[l]
		if final[c] == 0 {
			next++
			final[c] = next
		}
		prov[i] = final[c]
	}

	runs := make([]RLEs, next)
	scanRuns(prov, w, h, d, func(l int32, run RLE) {
		runs[l-1] = append(runs[l-1], run)
	})
	pop.Objects = make([]*Object, next)
	for i, r := range runs {
		pop.Objects[i] = NewObject(i+1, r)
	}
	return pop
}
