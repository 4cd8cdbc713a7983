package mot3d

import "math"

// IoUBEV calculates Intersection over Union between footprints of two boxes on the ground plane.
func IoUBEV(b1, b2 Box3D) float64 {
	inter, union := bevOverlap(b1, b2)
	if inter <= 0 || union <= 0 {
		return 0.0
	}
	return inter / union
}

// GIoUBEV calculates generalized IoU between box footprints. Value lies in (-1, 1].
func GIoUBEV(b1, b2 Box3D) float64 {
	p1, p2 := b1.Footprint(), b2.Footprint()
	inter, union := bevOverlap(b1, b2)
	hullArea := polygonArea(convexHull(append(p1, p2...)))
	if union <= 0 || hullArea <= 0 {
		return 0.0
	}
	return inter/union - (hullArea-union)/hullArea
}

// IoU3D calculates volumetric Intersection over Union between two oriented boxes.
func IoU3D(b1, b2 Box3D) float64 {
	interArea, _ := bevOverlap(b1, b2)
	interVolume := interArea * heightOverlap(b1, b2)
	if interVolume <= 0 {
		return 0.0
	}
	unionVolume := b1.Volume() + b2.Volume() - interVolume
	if unionVolume <= 0 {
		return 0.0
	}
	return interVolume / unionVolume
}

// GIoU3D calculates generalized volumetric IoU. The enclosing volume is convex hull
// of both footprints extruded over the joint vertical span. Value lies in (-1, 1].
func GIoU3D(b1, b2 Box3D) float64 {
	interArea, _ := bevOverlap(b1, b2)
	interVolume := interArea * heightOverlap(b1, b2)
	unionVolume := b1.Volume() + b2.Volume() - interVolume
	hullArea := polygonArea(convexHull(append(b1.Footprint(), b2.Footprint()...)))
	enclosing := hullArea * (maxFloat64(b1.Top(), b2.Top()) - minFloat64(b1.Bottom(), b2.Bottom()))
	if unionVolume <= 0 || enclosing <= 0 {
		return 0.0
	}
	return interVolume/unionVolume - (enclosing-unionVolume)/enclosing
}

// centerDistance3D returns Euclidean distance between box centers
func centerDistance3D(b1, b2 Box3D) float64 {
	dx := b1.X - b2.X
	dy := b1.Y - b2.Y
	dz := b1.Z - b2.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func bevOverlap(b1, b2 Box3D) (inter float64, union float64) {
	p1, p2 := b1.Footprint(), b2.Footprint()
	inter = polygonArea(clipConvex(p1, p2))
	union = b1.Length*b1.Width + b2.Length*b2.Width - inter
	return inter, union
}

func heightOverlap(b1, b2 Box3D) float64 {
	return maxFloat64(0, minFloat64(b1.Top(), b2.Top())-maxFloat64(b1.Bottom(), b2.Bottom()))
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
