package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// Camera holds pinhole intrinsics and a camera-to-world pose and
// generates rays for rendering. The intrinsic matrix follows the usual
// convention
//
//	fx  0  cx
//	 0 fy  cy
//	 0   0  1
//
// and pixel (x, y) unprojects to direction ((x-cx)/fx, -(y-cy)/fy, -1)
// in camera space: the camera looks down -Z with Y up.
type Camera struct {
	Width  int
	Height int
	K      mgl64.Mat3
	Pose   mgl64.Mat4
}

// NewCamera builds a camera with a centered principal point and a
// single focal length in pixels.
func NewCamera(width, height int, focal float64, pose mgl64.Mat4) *Camera {
	return &Camera{
		Width:  width,
		Height: height,
		K:      Intrinsics(focal, focal, float64(width)/2, float64(height)/2),
		Pose:   pose,
	}
}

// Intrinsics assembles a pinhole intrinsic matrix.
func Intrinsics(fx, fy, cx, cy float64) mgl64.Mat3 {
	// Column-major storage.
	return mgl64.Mat3{
		fx, 0, 0,
		0, fy, 0,
		cx, cy, 1,
	}
}

// Focal returns the x focal length in pixels.
func (c *Camera) Focal() float64 {
	return c.K.At(0, 0)
}

// Downscale returns a copy of the camera with height, width and focal
// lengths divided by factor, for fast preview renders. A factor <= 1
// returns the camera unchanged.
func (c *Camera) Downscale(factor int) *Camera {
	if factor <= 1 {
		return c
	}
	f := float64(factor)
	return &Camera{
		Width:  c.Width / factor,
		Height: c.Height / factor,
		K: Intrinsics(
			c.K.At(0, 0)/f,
			c.K.At(1, 1)/f,
			c.K.At(0, 2)/f,
			c.K.At(1, 2)/f,
		),
		Pose: c.Pose,
	}
}

// RayAt generates the ray through pixel (x, y).
func (c *Camera) RayAt(x, y int, near, far float64) core.Ray {
	rot := c.Pose.Mat3()
	origin := c.Pose.Col(3).Vec3()
	local := mgl64.Vec3{
		(float64(x) - c.K.At(0, 2)) / c.K.At(0, 0),
		-(float64(y) - c.K.At(1, 2)) / c.K.At(1, 1),
		-1,
	}
	return core.NewRay(origin, rot.Mul3x1(local), near, far)
}

// Rays generates one ray per pixel in row-major order, so index
// y*Width+x corresponds to pixel (x, y).
func (c *Camera) Rays(near, far float64) []core.Ray {
	rot := c.Pose.Mat3()
	origin := c.Pose.Col(3).Vec3()
	fx, fy := c.K.At(0, 0), c.K.At(1, 1)
	cx, cy := c.K.At(0, 2), c.K.At(1, 2)

	rays := make([]core.Ray, 0, c.Width*c.Height)
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			local := mgl64.Vec3{
				(float64(x) - cx) / fx,
				-(float64(y) - cy) / fy,
				-1,
			}
			rays = append(rays, core.NewRay(origin, rot.Mul3x1(local), near, far))
		}
	}
	return rays
}

// NDCRay remaps a ray into normalized device coordinates for
// forward-facing scenes. The origin is first advanced onto the near
// plane at z = -near, then origin and direction go through the
// projective transform, so that depth t in [0,1] along the remapped ray
// spans the near plane (NDC z = -1) to infinity (NDC z = +1). Near and
// Far are rewritten to 0 and 1; the view direction carries over.
func NDCRay(width, height int, focal, near float64, r core.Ray) core.Ray {
	o, d := r.Origin, r.Dir

	t := -(near + o.Z()) / d.Z()
	o = o.Add(d.Mul(t))

	sx := -focal / (float64(width) / 2)
	sy := -focal / (float64(height) / 2)

	origin := mgl64.Vec3{
		sx * o.X() / o.Z(),
		sy * o.Y() / o.Z(),
		1 + 2*near/o.Z(),
	}
	dir := mgl64.Vec3{
		sx * (d.X()/d.Z() - o.X()/o.Z()),
		sy * (d.Y()/d.Z() - o.Y()/o.Z()),
		-2 * near / o.Z(),
	}

	out := core.NewRay(origin, dir, 0, 1)
	out.ViewDir, out.HasViewDir = r.ViewDir, r.HasViewDir
	return out
}

// LookAtPose returns the camera-to-world matrix for a camera at eye
// looking toward center.
func LookAtPose(eye, center, up mgl64.Vec3) mgl64.Mat4 {
	return mgl64.LookAtV(eye, center, up).Inv()
}

// OrbitPose places a camera on a sphere of the given radius around
// center, at azimuth theta and elevation phi (radians), looking at
// center with +Z up.
func OrbitPose(center mgl64.Vec3, radius, theta, phi float64) mgl64.Mat4 {
	eye := center.Add(mgl64.Vec3{
		radius * math.Cos(phi) * math.Cos(theta),
		radius * math.Cos(phi) * math.Sin(theta),
		radius * math.Sin(phi),
	})
	return LookAtPose(eye, center, mgl64.Vec3{0, 0, 1})
}

// SpiralPath generates n poses orbiting center at the given radius,
// completing rots full turns while the elevation oscillates up to
// maxPhi (radians). Useful for turntable-style preview videos.
func SpiralPath(center mgl64.Vec3, radius, maxPhi float64, rots float64, n int) []mgl64.Mat4 {
	poses := make([]mgl64.Mat4, 0, n)
	for i := 0; i < n; i++ {
		u := float64(i) / float64(n)
		theta := 2 * math.Pi * rots * u
		phi := maxPhi * math.Sin(2*math.Pi*u)
		poses = append(poses, OrbitPose(center, radius, theta, phi))
	}
	return poses
}
