package mapview

import "math"

// maxLatitude is the Web Mercator cutoff.
const maxLatitude = 85.0511287798

// tileSize is the pixel width of one tile; radii are measured in these pixels.
const tileSize = 256.0

// project maps lng/lat to the unit square (0,0 top-left, 1,1 bottom-right).
func project(lng, lat float64) (x, y float64) {
	lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
	x = lng/360 + 0.5
	sin := math.Sin(lat * math.Pi / 180)
	y = 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	return x, math.Max(0, math.Min(1, y))
}

// unproject is the inverse of project.
func unproject(x, y float64) (lng, lat float64) {
	lng = (x - 0.5) * 360
	y2 := (180 - y*360) * math.Pi / 180
	lat = 360*math.Atan(math.Exp(y2))/math.Pi - 90
	return lng, lat
}

// worldPixels is the map width in pixels at zoom z.
func worldPixels(z int) float64 {
	return tileSize * math.Pow(2, float64(z))
}

func validCoord(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// BBox is a viewport in degrees. West may exceed East when the box crosses
// the antimeridian.
type BBox struct {
	West, South, East, North float64
}

// World covers every projectable point.
var World = BBox{West: -180, South: -90, East: 180, North: 90}

func (b BBox) contains(lng, lat float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	return lng >= b.West || lng <= b.East
}
