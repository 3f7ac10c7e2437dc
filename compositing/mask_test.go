package compositing

import (
	"errors"
	"slices"
	"testing"

	"github.com/relight/relight/ml"
)

func image(t *testing.T, b, h, w, c int) *ml.Tensor {
	t.Helper()

	data := make([]float32, b*h*w*c)
	for i := range data {
		data[i] = float32(i%13) / 13
	}

	tt, err := ml.NewTensor([]int{b, h, w, c}, data)
	if err != nil {
		t.Fatal(err)
	}

	return tt
}

func uniformMask(t *testing.T, shape []int, v float32) *ml.Tensor {
	t.Helper()

	n := 1
	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = v
	}

	tt, err := ml.NewTensor(shape, data)
	if err != nil {
		t.Fatal(err)
	}

	return tt
}

func TestApplyMaskGreyIdentity(t *testing.T) {
	img := image(t, 2, 4, 4, 3)

	got, err := ApplyMaskGrey(img, uniformMask(t, []int{2, 4, 4}, 1))
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(got.Floats(), img.Floats()) {
		t.Error("alpha of one should return the image unchanged")
	}
}

func TestApplyMaskGreyFullMask(t *testing.T) {
	img := image(t, 1, 2, 2, 3)

	got, err := ApplyMaskGrey(img, uniformMask(t, []int{1, 2, 2}, 0))
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range got.Floats() {
		if v != 0.5 {
			t.Fatalf("element %d: got %v, want 0.5", i, v)
		}
	}

	if want := []int{1, 2, 2, 3}; !slices.Equal(got.Shape(), want) {
		t.Errorf("got shape %v, want %v", got.Shape(), want)
	}
}

func TestApplyMaskGreyBlend(t *testing.T) {
	img := image(t, 1, 1, 2, 2)

	got, err := ApplyMaskGrey(img, uniformMask(t, []int{1, 1, 2}, 0.25))
	if err != nil {
		t.Fatal(err)
	}

	src := img.Floats()
	for i, v := range got.Floats() {
		if want := src[i]*0.25 + 0.5*0.75; v != want {
			t.Fatalf("element %d: got %v, want %v", i, v, want)
		}
	}
}

func TestApplyMaskGreyChannelDim(t *testing.T) {
	img := image(t, 2, 4, 4, 3)

	// (B, H, W, 1) masks behave like (B, H, W)
	a, err := ApplyMaskGrey(img, uniformMask(t, []int{2, 4, 4}, 0.5))
	if err != nil {
		t.Fatal(err)
	}

	b, err := ApplyMaskGrey(img, uniformMask(t, []int{2, 4, 4, 1}, 0.5))
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(a.Floats(), b.Floats()) {
		t.Error("trailing singleton channel changed the result")
	}
}

func TestApplyMaskGreyTypeViolation(t *testing.T) {
	img := image(t, 1, 4, 4, 3)

	cases := []struct {
		name  string
		alpha *ml.Tensor
	}{
		{"nil", nil},
		{"rank 2", uniformMask(t, []int{4, 4}, 1)},
		{"channel > 1", uniformMask(t, []int{1, 4, 4, 2}, 1)},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ApplyMaskGrey(img, tt.alpha); !errors.Is(err, ErrTypeViolation) {
				t.Errorf("got %v, want ErrTypeViolation", err)
			}
		})
	}
}

func TestApplyMaskGreyShapeMismatch(t *testing.T) {
	img := image(t, 1, 4, 4, 3)

	if _, err := ApplyMaskGrey(img, uniformMask(t, []int{1, 2, 2}, 1)); err == nil {
		t.Fatal("expected error for alpha not covering the image")
	}
}
