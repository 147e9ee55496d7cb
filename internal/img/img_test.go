package img

import (
	"testing"

	"github.com/agentsea/taskara/internal/errs"
)

func TestPassthrough(t *testing.T) {
	good := []string{
		"https://storage.agentsea.ai/shot1.png",
		"http://localhost:8080/shot2.png",
		"data:image/png;base64,iVBORw0KGgo=",
	}
	out, err := Passthrough{}.ConvertImages(good)
	if err != nil {
		t.Fatalf("ConvertImages: %v", err)
	}
	if len(out) != len(good) {
		t.Fatalf("got %d images, want %d", len(out), len(good))
	}
	for i := range good {
		if out[i] != good[i] {
			t.Errorf("image %d changed: %q", i, out[i])
		}
	}
}

func TestPassthroughRejectsOpaqueRefs(t *testing.T) {
	bad := [][]string{
		{"/tmp/shot.png"},
		{"shot.png"},
		{"ftp://host/shot.png"},
		{"https://ok.png", ""},
	}
	for _, refs := range bad {
		_, err := Passthrough{}.ConvertImages(refs)
		if errs.KindOf(err) != errs.KindValidation {
			t.Errorf("ConvertImages(%v) = %v, want validation error", refs, err)
		}
	}
}

func TestPassthroughEmpty(t *testing.T) {
	out, err := Passthrough{}.ConvertImages(nil)
	if err != nil {
		t.Fatalf("ConvertImages(nil): %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d images, want 0", len(out))
	}
}
