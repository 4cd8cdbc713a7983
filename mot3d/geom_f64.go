package mot3d

import (
	"math"
	"sort"
)

// Rectangle is an axis-aligned image-plane box. X and Y are the top-left corner.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// Center returns center of the rectangle
func (r Rectangle) Center() Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height/2.0,
	}
}

// Point is a point on the ground (bird's-eye) plane or on the image plane.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// Box3D is an oriented 3D bounding box.
// The ground plane is X-Y, Z points up. Yaw is the heading around Z measured from X axis,
// Length is the extent along the heading, Width is the extent across it.
type Box3D struct {
	X      float64
	Y      float64
	Z      float64
	Yaw    float64
	Length float64
	Width  float64
	Height float64
}

// NewBox3D creates box from center, heading and extent
func NewBox3D(x, y, z, yaw, length, width, height float64) Box3D {
	return Box3D{
		X:      x,
		Y:      y,
		Z:      z,
		Yaw:    yaw,
		Length: length,
		Width:  width,
		Height: height,
	}
}

// Center returns box center projected on the ground plane
func (b Box3D) Center() Point {
	return Point{X: b.X, Y: b.Y}
}

// Volume returns box volume
func (b Box3D) Volume() float64 {
	return b.Length * b.Width * b.Height
}

// Bottom returns lowest Z of the box
func (b Box3D) Bottom() float64 {
	return b.Z - b.Height/2.0
}

// Top returns highest Z of the box
func (b Box3D) Top() float64 {
	return b.Z + b.Height/2.0
}

// Footprint returns four corners of the box on the ground plane in counter-clockwise order.
func (b Box3D) Footprint() []Point {
	cosYaw, sinYaw := math.Cos(b.Yaw), math.Sin(b.Yaw)
	lx, ly := cosYaw*b.Length/2.0, sinYaw*b.Length/2.0
	wx, wy := -sinYaw*b.Width/2.0, cosYaw*b.Width/2.0
	return []Point{
		{X: b.X + lx + wx, Y: b.Y + ly + wy},
		{X: b.X - lx + wx, Y: b.Y - ly + wy},
		{X: b.X - lx - wx, Y: b.Y - ly - wy},
		{X: b.X + lx - wx, Y: b.Y + ly - wy},
	}
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// polygonArea returns area of a simple polygon (shoelace formula)
func polygonArea(poly []Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	area := 0.0
	for i := range poly {
		j := (i + 1) % len(poly)
		area += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(area) / 2.0
}

// clipConvex returns intersection of two convex counter-clockwise polygons (Sutherland-Hodgman).
func clipConvex(subject, clip []Point) []Point {
	output := subject
	for i := range clip {
		if len(output) == 0 {
			break
		}
		a := clip[i]
		b := clip[(i+1)%len(clip)]
		input := output
		output = make([]Point, 0, len(input)+2)
		for j := range input {
			cur := input[j]
			prev := input[(j+len(input)-1)%len(input)]
			curSide := cross(a, b, cur)
			prevSide := cross(a, b, prev)
			if curSide >= 0 {
				if prevSide < 0 {
					output = append(output, segmentCut(prev, cur, prevSide, curSide))
				}
				output = append(output, cur)
			} else if prevSide >= 0 {
				output = append(output, segmentCut(prev, cur, prevSide, curSide))
			}
		}
	}
	return output
}

// segmentCut returns point of segment p-q where signed side value changes sign.
// sp and sq are side values of p and q relative to the clipping line, and they have different signs.
func segmentCut(p, q Point, sp, sq float64) Point {
	t := sp / (sp - sq)
	return Point{X: p.X + t*(q.X-p.X), Y: p.Y + t*(q.Y-p.Y)}
}

// convexHull returns convex hull of points in counter-clockwise order (Andrew's monotone chain)
func convexHull(points []Point) []Point {
	if len(points) < 3 {
		return points
	}
	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X == pts[j].X {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})
	hull := make([]Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}
