package colorscope

import "goki.dev/mat32/v2"

// Radians converts degrees to radians.
func Radians(deg float32) float32 { return mat32.DegToRad(deg) }

// Quat is a rotation quaternion.
type Quat = mat32.Quat

// Mat4 is a 4x4 matrix in column-major order, the layout of a WGSL
// mat4x4<f32>. Element (row r, column c) is at index c*4+r.
type Mat4 = mat32.Mat4

var (
	axisX = mat32.V3(1, 0, 0)
	axisY = mat32.V3(0, 1, 0)
	axisZ = mat32.V3(0, 0, 1)
)

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat { return mat32.NewQuat(0, 0, 0, 1) }

// QuatRotationX creates a rotation around the X axis (angle in radians).
func QuatRotationX(angle float32) Quat { return mat32.NewQuatAxisAngle(axisX, angle) }

// QuatRotationY creates a rotation around the Y axis (angle in radians).
func QuatRotationY(angle float32) Quat { return mat32.NewQuatAxisAngle(axisY, angle) }

// QuatRotationZ creates a rotation around the Z axis (angle in radians).
func QuatRotationZ(angle float32) Quat { return mat32.NewQuatAxisAngle(axisZ, angle) }

// RotationMatrix returns the rotation matrix of a unit quaternion.
func RotationMatrix(q Quat) Mat4 {
	var m Mat4
	m.SetRotationFromQuat(q)
	return m
}

// Projection returns the color cloud projection for a camera rotation:
// the inverse of the rotation matrix. A rotation's inverse is the
// rotation of its conjugate, so no general matrix inverse is needed.
func Projection(q Quat) Mat4 {
	return RotationMatrix(q.Inverse())
}

// TransformPoint applies m to the point (x, y, z, 1).
func TransformPoint(m Mat4, p [3]float32) [3]float32 {
	v := mat32.V3(p[0], p[1], p[2])
	v = v.MulMat4(&m)
	return [3]float32{v.X, v.Y, v.Z}
}

// IsIdentity reports whether m is the identity matrix within eps.
func IsIdentity(m Mat4, eps float32) bool {
	for i := range m {
		want := float32(0)
		if i%5 == 0 {
			want = 1
		}
		if mat32.Abs(m[i]-want) > eps {
			return false
		}
	}
	return true
}
