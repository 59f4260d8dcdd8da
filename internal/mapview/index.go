package mapview

import (
	"errors"
	"math"

	"github.com/EmpoweredVote/meresahar/internal/issues"
)

var ErrUnknownCluster = errors.New("unknown cluster")

// Options tunes the cluster index.
type Options struct {
	MinZoom int
	MaxZoom int

	// Radius is the cluster radius in screen pixels.
	Radius float64
}

func DefaultOptions() Options {
	return Options{MinZoom: 0, MaxZoom: 19, Radius: 60}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MinZoom < 0 || o.MinZoom > o.MaxZoom {
		o.MinZoom = 0
	}
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	return o
}

type node struct {
	id       int
	x, y     float64
	lng, lat float64
	count    int
	// zoom is the level the node was created at. Leaves sit one level
	// below MaxZoom.
	zoom     int
	issue    *issues.IssueSummary
	children []*node
	statuses map[issues.Status]int
}

// Index is a hierarchical grid clustering of located issues: one level per
// zoom, each built by merging the level below it.
type Index struct {
	opts   Options
	levels [][]*node
	byID   map[int]*node

	// Placed counts issues on the map; Skipped counts those without a
	// usable position.
	Placed  int
	Skipped int
}

// NewIndex builds the index. Issues without both coordinates are left out.
func NewIndex(rows []issues.IssueSummary, opts Options) *Index {
	opts = opts.normalized()
	ix := &Index{
		opts:   opts,
		levels: make([][]*node, opts.MaxZoom+2),
		byID:   map[int]*node{},
	}

	leaves := make([]*node, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if !row.Located() || !validCoord(*row.Latitude, *row.Longitude) {
			ix.Skipped++
			continue
		}
		row.Status = issues.NormalizeStatus(string(row.Status))
		x, y := project(*row.Longitude, *row.Latitude)
		leaves = append(leaves, &node{
			x:        x,
			y:        y,
			lng:      *row.Longitude,
			lat:      *row.Latitude,
			count:    1,
			zoom:     opts.MaxZoom + 1,
			issue:    &row,
			statuses: map[issues.Status]int{row.Status: 1},
		})
	}
	ix.Placed = len(leaves)
	ix.levels[opts.MaxZoom+1] = leaves

	prev := leaves
	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		prev = ix.cluster(prev, z)
		ix.levels[z] = prev
	}
	return ix
}

type cellKey struct{ cx, cy int }

// cluster merges every point with its unvisited neighbours inside the zoom's
// radius. Lone points move up unchanged.
func (ix *Index) cluster(points []*node, z int) []*node {
	r := ix.opts.Radius / worldPixels(z)
	cellOf := func(n *node) cellKey {
		return cellKey{int(math.Floor(n.x / r)), int(math.Floor(n.y / r))}
	}

	grid := map[cellKey][]int{}
	for i, p := range points {
		k := cellOf(p)
		grid[k] = append(grid[k], i)
	}

	visited := make([]bool, len(points))
	out := make([]*node, 0, len(points))
	for i, p := range points {
		if visited[i] {
			continue
		}
		visited[i] = true
		members := []*node{p}

		k := cellOf(p)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[cellKey{k.cx + dx, k.cy + dy}] {
					if visited[j] {
						continue
					}
					q := points[j]
					if (q.x-p.x)*(q.x-p.x)+(q.y-p.y)*(q.y-p.y) <= r*r {
						visited[j] = true
						members = append(members, q)
					}
				}
			}
		}

		if len(members) == 1 {
			out = append(out, p)
			continue
		}
		out = append(out, ix.newCluster(members, z))
	}
	return out
}

func (ix *Index) newCluster(members []*node, z int) *node {
	c := &node{
		id:       len(ix.byID) + 1,
		zoom:     z,
		children: members,
		statuses: map[issues.Status]int{},
	}
	var wx, wy float64
	for _, m := range members {
		wx += m.x * float64(m.count)
		wy += m.y * float64(m.count)
		c.count += m.count
		for st, n := range m.statuses {
			c.statuses[st] += n
		}
	}
	c.x = wx / float64(c.count)
	c.y = wy / float64(c.count)
	c.lng, c.lat = unproject(c.x, c.y)
	ix.byID[c.id] = c
	return c
}

// LatLng is a position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Feature is one drawable thing: a cluster bubble or a single marker.
type Feature struct {
	Kind          string                `json:"kind"`
	ClusterID     int                   `json:"cluster_id,omitempty"`
	IssueID       int64                 `json:"issue_id,omitempty"`
	Category      string                `json:"category,omitempty"`
	Lat           float64               `json:"lat"`
	Lng           float64               `json:"lng"`
	Count         int                   `json:"count"`
	ExpansionZoom int                   `json:"expansion_zoom,omitempty"`
	Encoding      Encoding              `json:"encoding"`
	Statuses      map[issues.Status]int `json:"statuses,omitempty"`

	// Anchor is set on spiderfied markers: the shared position their leg
	// is drawn from.
	Anchor *LatLng `json:"anchor,omitempty"`
}

const (
	KindCluster = "cluster"
	KindMarker  = "marker"
)

// Clusters returns what to draw inside bbox at zoom. At MaxZoom and beyond
// nothing stays clustered: remaining groups are spread around their center.
func (ix *Index) Clusters(bbox BBox, zoom int) []Feature {
	z := ix.clampZoom(zoom)
	features := []Feature{}

	for _, n := range ix.levels[z] {
		if !bbox.contains(n.lng, n.lat) {
			continue
		}
		switch {
		case n.issue != nil:
			features = append(features, markerFeature(n.issue, n.lat, n.lng, nil))
		case z >= ix.opts.MaxZoom:
			features = append(features, ix.spiderfy(n, z)...)
		default:
			features = append(features, ix.clusterFeature(n))
		}
	}
	return features
}

// ExpansionZoom is the zoom at which a cluster splits into its children.
func (ix *Index) ExpansionZoom(clusterID int) (int, error) {
	n, ok := ix.byID[clusterID]
	if !ok {
		return 0, ErrUnknownCluster
	}
	if n.zoom >= ix.opts.MaxZoom {
		return ix.opts.MaxZoom, nil
	}
	return n.zoom + 1, nil
}

// Leaves returns the issues under a cluster.
func (ix *Index) Leaves(clusterID int) ([]issues.IssueSummary, error) {
	n, ok := ix.byID[clusterID]
	if !ok {
		return nil, ErrUnknownCluster
	}
	var out []issues.IssueSummary
	for _, leaf := range collectLeaves(n, nil) {
		out = append(out, *leaf.issue)
	}
	return out, nil
}

func (ix *Index) MaxZoom() int { return ix.opts.MaxZoom }

func (ix *Index) clampZoom(zoom int) int {
	if zoom < ix.opts.MinZoom {
		return ix.opts.MinZoom
	}
	if zoom > ix.opts.MaxZoom {
		return ix.opts.MaxZoom
	}
	return zoom
}

func (ix *Index) clusterFeature(n *node) Feature {
	exp, _ := ix.ExpansionZoom(n.id)
	return Feature{
		Kind:          KindCluster,
		ClusterID:     n.id,
		Lat:           n.lat,
		Lng:           n.lng,
		Count:         n.count,
		ExpansionZoom: exp,
		Encoding:      Encode(dominant(n.statuses)),
		Statuses:      n.statuses,
	}
}

func markerFeature(row *issues.IssueSummary, lat, lng float64, anchor *LatLng) Feature {
	return Feature{
		Kind:     KindMarker,
		IssueID:  row.ID,
		Category: row.Category,
		Lat:      lat,
		Lng:      lng,
		Count:    1,
		Encoding: Encode(row.Status),
		Anchor:   anchor,
	}
}

// spiderfy spreads a cluster's leaves on a circle (or a spiral for larger
// groups) around its center, measured in pixels at zoom z.
func (ix *Index) spiderfy(n *node, z int) []Feature {
	leaves := collectLeaves(n, nil)
	offsets := spiderOffsets(len(leaves))
	w := worldPixels(z)
	cx, cy := n.x*w, n.y*w
	anchor := &LatLng{Lat: n.lat, Lng: n.lng}

	out := make([]Feature, len(leaves))
	for i, leaf := range leaves {
		lng, lat := unproject((cx+offsets[i].dx)/w, (cy+offsets[i].dy)/w)
		out[i] = markerFeature(leaf.issue, lat, lng, anchor)
	}
	return out
}

func collectLeaves(n *node, acc []*node) []*node {
	if n.issue != nil {
		return append(acc, n)
	}
	for _, c := range n.children {
		acc = collectLeaves(c, acc)
	}
	return acc
}

type offset struct{ dx, dy float64 }

const (
	circleFootSeparation   = 25.0
	spiralFootSeparation   = 28.0
	spiralLengthStart      = 11.0
	spiralLengthFactor     = 5.0
	circleSpiralSwitchover = 9
)

func spiderOffsets(count int) []offset {
	if count >= circleSpiralSwitchover {
		return spiralOffsets(count)
	}
	return circleOffsets(count)
}

func circleOffsets(count int) []offset {
	out := make([]offset, count)
	if count == 0 {
		return out
	}
	circumference := circleFootSeparation * float64(2+count)
	leg := circumference / (2 * math.Pi)
	step := 2 * math.Pi / float64(count)
	for i := range out {
		angle := float64(i) * step
		out[i] = offset{leg * math.Cos(angle), leg * math.Sin(angle)}
	}
	return out
}

func spiralOffsets(count int) []offset {
	out := make([]offset, count)
	leg := spiralLengthStart
	angle := 0.0
	for i := count; i >= 0; i-- {
		if i < count {
			out[i] = offset{leg * math.Cos(angle), leg * math.Sin(angle)}
		}
		angle += spiralFootSeparation/leg + float64(i)*0.0005
		leg += spiralLengthFactor * 2 * math.Pi / angle
	}
	return out
}

// dominant picks the most common status; ties go to the earlier lifecycle
// state.
func dominant(statuses map[issues.Status]int) issues.Status {
	best := issues.StatusPending
	bestN := -1
	for _, st := range issues.Statuses {
		if n := statuses[st]; n > bestN {
			best, bestN = st, n
		}
	}
	return best
}
