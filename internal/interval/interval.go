// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package interval answers "which windows contain this instant" for
// batches of timestamps without scanning every window per timestamp.
//
// Membership is the open interval (Start, End): an instant equal to
// either bound belongs to no window.
package interval

import (
	"container/heap"
	"sort"
	"time"
)

// Interval is a named time window
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies strictly inside the window
func (iv Interval) Contains(t time.Time) bool {
	return t.After(iv.Start) && t.Before(iv.End)
}

// Point is a named instant
type Point struct {
	ID string
	At time.Time
}

// Assign maps each interval id to the ids of the points it contains, in
// time order. Intervals that contain nothing are absent from the result.
// Duplicate point ids are counted once.
//
// Intervals are sorted by start once and swept with a min-heap keyed on
// end, so the cost is O((n+m) log n) plus the size of the output.
func Assign(intervals []Interval, points []Point) map[string][]string {
	out := make(map[string][]string)
	if len(intervals) == 0 || len(points) == 0 {
		return out
	}

	ivs := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End.After(iv.Start) {
			ivs = append(ivs, iv)
		}
	}
	sort.SliceStable(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })

	pts := dedupe(points)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].At.Before(pts[j].At) })

	active := &endHeap{}
	next := 0
	for _, p := range pts {
		for next < len(ivs) && ivs[next].Start.Before(p.At) {
			heap.Push(active, ivs[next])
			next++
		}
		for active.Len() > 0 && !(*active)[0].End.After(p.At) {
			heap.Pop(active)
		}
		for _, iv := range *active {
			out[iv.ID] = append(out[iv.ID], p.ID)
		}
	}
	return out
}

func dedupe(points []Point) []Point {
	seen := make(map[string]struct{}, len(points))
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

type endHeap []Interval

func (h endHeap) Len() int            { return len(h) }
func (h endHeap) Less(i, j int) bool  { return h[i].End.Before(h[j].End) }
func (h endHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *endHeap) Push(x interface{}) { *h = append(*h, x.(Interval)) }
func (h *endHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Index answers single-instant lookups over a fixed set of intervals
type Index struct {
	byStart     []Interval
	maxDuration time.Duration
}

// NewIndex builds an index; the input slice is not retained
func NewIndex(intervals []Interval) *Index {
	idx := &Index{byStart: make([]Interval, 0, len(intervals))}
	for _, iv := range intervals {
		if !iv.End.After(iv.Start) {
			continue
		}
		idx.byStart = append(idx.byStart, iv)
		if d := iv.End.Sub(iv.Start); d > idx.maxDuration {
			idx.maxDuration = d
		}
	}
	sort.SliceStable(idx.byStart, func(i, j int) bool { return idx.byStart[i].Start.Before(idx.byStart[j].Start) })
	return idx
}

// Len returns the number of indexed intervals
func (x *Index) Len() int { return len(x.byStart) }

// Containing returns the ids of intervals containing t, by start time.
// Only intervals starting within maxDuration before t are examined.
func (x *Index) Containing(t time.Time) []string {
	// first interval that does not start before t
	hi := sort.Search(len(x.byStart), func(i int) bool { return !x.byStart[i].Start.Before(t) })
	floor := t.Add(-x.maxDuration)

	var ids []string
	for i := hi - 1; i >= 0 && !x.byStart[i].Start.Before(floor); i-- {
		if x.byStart[i].Contains(t) {
			ids = append(ids, x.byStart[i].ID)
		}
	}
	// reverse into start order
	for l, r := 0, len(ids)-1; l < r; l, r = l+1, r-1 {
		ids[l], ids[r] = ids[r], ids[l]
	}
	return ids
}

// First returns the latest-starting interval containing t
func (x *Index) First(t time.Time) (string, bool) {
	ids := x.Containing(t)
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}
