package physical

import (
	"container/heap"
	"math"
)

// ShortestPath returns the minimum-latency path from one component to
// another using Dijkstra over the connection graph. It returns nil when
// either endpoint is unknown or no path exists. Equal-cost candidates are
// resolved in discovery order, so results are deterministic for a given
// sequence of Connect calls.
func (t *Topology) ShortestPath(from, to ComponentID) []ComponentID {
	if !t.HasComponent(from) || !t.HasComponent(to) {
		return nil
	}
	if from == to {
		return []ComponentID{from}
	}

	adj := t.neighbours()

	dist := map[ComponentID]float64{from: 0}
	prev := make(map[ComponentID]ComponentID)
	visited := make(map[ComponentID]bool)

	pq := &pathQueue{}
	seq := 0
	heap.Push(pq, &pathItem{id: from, cost: 0, seq: seq})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pathItem)
		if visited[item.id] {
			continue
		}
		visited[item.id] = true

		if item.id == to {
			return buildPath(prev, from, to)
		}

		for _, nb := range adj[item.id] {
			if visited[nb.id] {
				continue
			}
			cost := item.cost + nb.conn.Latency()
			best, seen := dist[nb.id]
			if !seen {
				best = math.Inf(1)
			}
			if cost < best {
				dist[nb.id] = cost
				prev[nb.id] = item.id
				seq++
				heap.Push(pq, &pathItem{id: nb.id, cost: cost, seq: seq})
			}
		}
	}

	return nil
}

func buildPath(prev map[ComponentID]ComponentID, from, to ComponentID) []ComponentID {
	path := []ComponentID{to}
	for cur := to; cur != from; {
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		path = append(path, p)
		cur = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type pathItem struct {
	id   ComponentID
	cost float64
	seq  int
}

// pathQueue is a min-heap on cost, then discovery sequence.
type pathQueue []*pathItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].seq < q[j].seq
}
func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pathQueue) Push(x any) {
	*q = append(*q, x.(*pathItem))
}

func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
