package vector

import "sort"

type neighbor struct {
	id       int64
	distance float64
}

// layer is one level of the graph. Neighbor lists are kept sorted by
// distance and capped; the farthest entry is evicted on overflow.
type layer struct {
	nodes map[int64][]neighbor
}

func newLayer() *layer {
	return &layer{nodes: make(map[int64][]neighbor)}
}

func (l *layer) addNode(id int64) {
	if _, ok := l.nodes[id]; !ok {
		l.nodes[id] = nil
	}
}

func (l *layer) hasNode(id int64) bool {
	_, ok := l.nodes[id]
	return ok
}

func (l *layer) neighbors(id int64) []neighbor {
	return l.nodes[id]
}

func (l *layer) addNeighbor(id, other int64, distance float64, limit int) {
	list, ok := l.nodes[id]
	if !ok || id == other {
		return
	}
	for _, n := range list {
		if n.id == other {
			return
		}
	}
	if len(list) >= limit && distance >= list[len(list)-1].distance {
		return
	}

	i := sort.Search(len(list), func(i int) bool { return list[i].distance > distance })
	list = append(list, neighbor{})
	copy(list[i+1:], list[i:])
	list[i] = neighbor{id: other, distance: distance}
	if len(list) > limit {
		list = list[:limit]
	}
	l.nodes[id] = list
}

// removeNode drops id and every edge pointing at it.
func (l *layer) removeNode(id int64) {
	delete(l.nodes, id)
	for nodeID, list := range l.nodes {
		for i, n := range list {
			if n.id == id {
				l.nodes[nodeID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

func (l *layer) size() int {
	return len(l.nodes)
}

// anyNode returns the smallest id in the layer.
func (l *layer) anyNode() (int64, bool) {
	var best int64
	found := false
	for id := range l.nodes {
		if !found || id < best {
			best, found = id, true
		}
	}
	return best, found
}
