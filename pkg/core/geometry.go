// pkg/core/geometry.go
package core

import "math"

// Vec3 is a world-space position or extent in game units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// LengthSqr returns the squared length of v.
func (v Vec3) LengthSqr() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Length2DSqr returns the squared horizontal (XY) length of v.
func (v Vec3) Length2DSqr() float64 {
	return v.X*v.X + v.Y*v.Y
}

// LerpVec3 blends from a to b by t. t=0 yields a, t=1 yields b.
func LerpVec3(t float64, a, b Vec3) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Angles is an orientation in degrees.
type Angles struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Add returns a + o component-wise.
func (a Angles) Add(o Angles) Angles {
	return Angles{a.Pitch + o.Pitch, a.Yaw + o.Yaw, a.Roll + o.Roll}
}

// Sub returns a - o component-wise.
func (a Angles) Sub(o Angles) Angles {
	return Angles{a.Pitch - o.Pitch, a.Yaw - o.Yaw, a.Roll - o.Roll}
}

// LengthSqr treats the angles as a vector and returns its squared length.
func (a Angles) LengthSqr() float64 {
	return a.Pitch*a.Pitch + a.Yaw*a.Yaw + a.Roll*a.Roll
}

// Delta returns the rotation from o to a per component, each taken along the
// shorter arc and normalized into (-180, 180].
func (a Angles) Delta(o Angles) Angles {
	return Angles{
		Pitch: NormalizeAngle(a.Pitch - o.Pitch),
		Yaw:   NormalizeAngle(a.Yaw - o.Yaw),
		Roll:  NormalizeAngle(a.Roll - o.Roll),
	}
}

// NormalizeAngle maps deg into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	switch {
	case deg > 180:
		deg -= 360
	case deg <= -180:
		deg += 360
	}
	return deg
}

// LerpAngles blends from a to b by t, turning each component the short way
// round. The result is not renormalized, so a 350 to 10 blend passes 360.
func LerpAngles(t float64, a, b Angles) Angles {
	d := b.Delta(a)
	return Angles{
		Pitch: a.Pitch + d.Pitch*t,
		Yaw:   a.Yaw + d.Yaw*t,
		Roll:  a.Roll + d.Roll*t,
	}
}

// Box is an axis-aligned bounding box in world space.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoxAt returns the world box of extents mins/maxs placed at origin.
func BoxAt(origin, mins, maxs Vec3) Box {
	return Box{Min: origin.Add(mins), Max: origin.Add(maxs)}
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		Min: Vec3{min(b.Min.X, o.Min.X), min(b.Min.Y, o.Min.Y), min(b.Min.Z, o.Min.Z)},
		Max: Vec3{max(b.Max.X, o.Max.X), max(b.Max.Y, o.Max.Y), max(b.Max.Z, o.Max.Z)},
	}
}

// Expand grows the box by r on every side.
func (b Box) Expand(r float64) Box {
	d := Vec3{r, r, r}
	return Box{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Overlaps reports whether the interiors of b and o intersect.
// Boxes that only touch on a face do not overlap.
func (b Box) Overlaps(o Box) bool {
	return b.Min.X < o.Max.X && b.Max.X > o.Min.X &&
		b.Min.Y < o.Max.Y && b.Max.Y > o.Min.Y &&
		b.Min.Z < o.Max.Z && b.Max.Z > o.Min.Z
}

// IntersectSegment clips the segment start→end against the box using the slab
// method and returns the entry fraction in [0,1]. ok is false when the segment
// misses. A segment starting inside the box enters at 0.
func (b Box) IntersectSegment(start, end Vec3) (frac float64, ok bool) {
	tmin, tmax := 0.0, 1.0
	s := [3]float64{start.X, start.Y, start.Z}
	d := [3]float64{end.X - start.X, end.Y - start.Y, end.Z - start.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		if d[i] == 0 {
			if s[i] < lo[i] || s[i] > hi[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / d[i]
		t1 := (lo[i] - s[i]) * inv
		t2 := (hi[i] - s[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
