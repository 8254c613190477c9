package viewport

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/wudi/regionedit/coords"
)

func TestInverseLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		vp := Viewport{
			Zoom:       0.1 + rng.Float64()*8,
			Rotation:   90 * rng.Intn(4),
			PageWidth:  50 + rng.Float64()*1500,
			PageHeight: 50 + rng.Float64()*1500,
			Origin:     coords.Point{X: rng.Float64()*400 - 200, Y: rng.Float64()*400 - 200},
			PageOrigin: coords.Point{X: rng.Float64() * 30, Y: rng.Float64() * 30},
		}
		p := coords.Point{X: rng.Float64()*2000 - 500, Y: rng.Float64()*2000 - 500}
		back := ToPageSpace(ToDeviceSpace(p, vp), vp)
		if back.Dist(p) > 1e-7 {
			t.Fatalf("viewport %+v: %+v -> %+v", vp, p, back)
		}
	}
}

func TestVerticalFlip(t *testing.T) {
	vp := Viewport{Zoom: 1, PageWidth: 612, PageHeight: 792}
	top := ToDeviceSpace(coords.Point{X: 0, Y: 792}, vp)
	if top.X != 0 || top.Y != 0 {
		t.Fatalf("page top-left should be device origin, got %+v", top)
	}
	bottom := ToDeviceSpace(coords.Point{X: 0, Y: 0}, vp)
	if bottom.Y != 792 {
		t.Fatalf("page bottom should be device bottom, got %+v", bottom)
	}
}

func TestRotationCorners(t *testing.T) {
	vp := Viewport{Zoom: 2, PageWidth: 100, PageHeight: 200}
	cases := []struct {
		rot  int
		want coords.Point
	}{
		{0, coords.Point{X: 0, Y: 0}},
		{90, coords.Point{X: 400, Y: 0}},
		{180, coords.Point{X: 200, Y: 400}},
		{270, coords.Point{X: 0, Y: 200}},
	}
	// page top-left corner
	p := coords.Point{X: 0, Y: 200}
	for _, tc := range cases {
		vp.Rotation = tc.rot
		got := ToDeviceSpace(p, vp)
		if got.Dist(tc.want) > 1e-9 {
			t.Fatalf("rotation %d: got %+v want %+v", tc.rot, got, tc.want)
		}
	}
	vp.Rotation = 90
	if w, h := vp.DeviceSize(); w != 400 || h != 200 {
		t.Fatalf("rotated device size = %vx%v", w, h)
	}
}

func TestMatrixMatchesFunctions(t *testing.T) {
	vp := Viewport{Zoom: 1.5, Rotation: 270, PageWidth: 612, PageHeight: 792, Origin: coords.Point{X: 10, Y: 20}}
	p := coords.Point{X: 100, Y: 700}
	m := vp.Matrix().Transform(p)
	f := ToDeviceSpace(p, vp)
	if m.Dist(f) > 1e-9 {
		t.Fatalf("matrix %+v != function %+v", m, f)
	}
}

func TestValidate(t *testing.T) {
	bad := []Viewport{
		{Zoom: 0, PageWidth: 1, PageHeight: 1},
		{Zoom: math.NaN(), PageWidth: 1, PageHeight: 1},
		{Zoom: 1, PageWidth: 0, PageHeight: 1},
		{Zoom: 1, Rotation: 45, PageWidth: 1, PageHeight: 1},
	}
	for _, vp := range bad {
		if err := vp.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %+v, got %v", vp, err)
		}
	}
	if err := (Viewport{Zoom: 1, Rotation: -90, PageWidth: 1, PageHeight: 1}).Validate(); err != nil {
		t.Fatalf("-90 is a valid quarter turn: %v", err)
	}
}
