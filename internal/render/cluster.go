package render

import (
	"math"
	"sort"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/selection"
)

// Clustering parameters.
const (
	// ClusterRadius is the pixel distance under which markers group.
	ClusterRadius = 30
	// DisableClusteringAtZoom shows every marker individually at and above
	// this zoom.
	DisableClusteringAtZoom = 18
	// MaxFitZoom caps the zoom chosen when fitting all markers.
	MaxFitZoom = 15
	tileSize   = 256
)

// ClusterClass returns the CSS class of a cluster icon for count children.
func ClusterClass(count int, selected bool) string {
	c := "marker-cluster marker-cluster-"
	switch {
	case count < 10:
		c += "small"
	case count < 100:
		c += "medium"
	default:
		c += "large"
	}
	if selected {
		c += " marker-cluster-selected"
	}
	return c
}

// Cluster is a group of nearby markers at one zoom level.
type Cluster struct {
	Center   model.Coordinate `json:"center"`
	Count    int              `json:"count"`
	IDs      []model.RecordID `json:"ids"`
	Selected bool             `json:"selected"`
	Class    string           `json:"class"`
}

// project converts a position to world pixel coordinates at zoom.
func project(c model.Coordinate, zoom int) (float64, float64) {
	scale := tileSize * math.Pow(2, float64(zoom))
	lat := math.Max(math.Min(c.Lat, 85.05112878), -85.05112878)
	sin := math.Sin(lat * math.Pi / 180)
	x := (c.Lng + 180) / 360 * scale
	y := (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * scale
	return x, y
}

type cell struct{ x, y int }

// clusterMarkers groups markers that fall in the same grid cell at zoom.
// Cells holding one marker are returned as singles, not clusters.
func clusterMarkers(markers []selection.Marker, zoom int, isSelected func(model.RecordID) bool) ([]Cluster, []selection.Marker) {
	if zoom >= DisableClusteringAtZoom {
		return nil, markers
	}

	size := float64(2 * ClusterRadius)
	groups := make(map[cell][]selection.Marker)
	var order []cell
	for _, m := range markers {
		x, y := project(m.Position(), zoom)
		k := cell{int(math.Floor(x / size)), int(math.Floor(y / size))}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}

	var clusters []Cluster
	var singles []selection.Marker
	for _, k := range order {
		g := groups[k]
		if len(g) == 1 {
			singles = append(singles, g[0])
			continue
		}
		cl := Cluster{Count: len(g)}
		for _, m := range g {
			p := m.Position()
			cl.Center.Lat += p.Lat / float64(len(g))
			cl.Center.Lng += p.Lng / float64(len(g))
			cl.IDs = append(cl.IDs, m.ID)
			if isSelected(m.ID) {
				cl.Selected = true
			}
		}
		sort.Slice(cl.IDs, func(i, j int) bool { return cl.IDs[i] < cl.IDs[j] })
		cl.Class = ClusterClass(cl.Count, cl.Selected)
		clusters = append(clusters, cl)
	}
	return clusters, singles
}

// fitZoom returns the highest zoom, capped at MaxFitZoom, at which the
// bounds fit in a viewport of the given pixel size.
func fitZoom(minLng, minLat, maxLng, maxLat float64, width, height int) int {
	for z := MaxFitZoom; z > 0; z-- {
		x1, y1 := project(model.Coordinate{Lat: maxLat, Lng: minLng}, z)
		x2, y2 := project(model.Coordinate{Lat: minLat, Lng: maxLng}, z)
		if x2-x1 <= float64(width) && y2-y1 <= float64(height) {
			return z
		}
	}
	return 0
}
