package gpu

import "github.com/go-gl/mathgl/mgl32"

// ClipCorrection maps the OpenGL style clip space produced by mgl32 onto the
// device's: y pointing down and depth in [0, 1].
var ClipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}
