package main

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCubeTransform(t *testing.T) {
	mvp := cubeTransform(0, 1680.0/720.0)

	// At t=0 the rotation is identity, so the cube center (0,0,0)
	// lands at (0,0,-3.5) in view space, inside the frustum.
	center := mvp.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if center.W() <= 0 {
		t.Fatalf("cube center behind the camera: w = %v", center.W())
	}

	ndc := center.Mul(1 / center.W())
	if math.Abs(float64(ndc.X())) > 1 || math.Abs(float64(ndc.Y())) > 1 {
		t.Errorf("cube center outside clip range: (%v, %v)", ndc.X(), ndc.Y())
	}
	if ndc.Z() < 0 || ndc.Z() > 1 {
		t.Errorf("cube center outside depth range: %v", ndc.Z())
	}
}

func TestCubeTransformRotates(t *testing.T) {
	a := cubeTransform(0, 1)
	b := cubeTransform(1, 1)

	if a == b {
		t.Error("transform did not change over time")
	}
}
