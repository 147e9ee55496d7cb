package flag

import (
	"testing"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name string
		flag types.V1Flag
		ok   bool
	}{
		{
			name: "valid bounding box",
			flag: types.V1Flag{
				Type: TypeBoundingBox,
				Flag: map[string]any{
					"img":    "https://storage.agentsea.ai/shot1.png",
					"target": "submit button",
					"bbox":   map[string]any{"x0": 10, "y0": 20, "x1": 110, "y1": 60},
				},
			},
			ok: true,
		},
		{
			name: "bounding box missing target",
			flag: types.V1Flag{
				Type: TypeBoundingBox,
				Flag: map[string]any{"img": "https://storage.agentsea.ai/shot1.png"},
			},
			ok: false,
		},
		{
			name: "bounding box missing img",
			flag: types.V1Flag{
				Type: TypeBoundingBox,
				Flag: map[string]any{"target": "submit button"},
			},
			ok: false,
		},
		{
			name: "unknown type passes through",
			flag: types.V1Flag{
				Type: "free_form",
				Flag: map[string]any{"anything": "goes"},
			},
			ok: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePayload(tc.flag)
			if tc.ok && err != nil {
				t.Fatalf("validatePayload: %v", err)
			}
			if !tc.ok && errs.KindOf(err) != errs.KindValidation {
				t.Fatalf("validatePayload = %v, want validation error", err)
			}
		})
	}
}

func TestFromRecordRoundTrip(t *testing.T) {
	rec := &store.FlagRecord{
		ID:      "flag-1",
		Type:    TypeBoundingBox,
		Flag:    []byte(`{"img": "https://storage.agentsea.ai/shot1.png", "target": "submit button"}`),
		Result:  []byte(`{"correct": true}`),
		Created: 1700000000,
	}
	v1, err := fromRecord(rec)
	if err != nil {
		t.Fatalf("fromRecord: %v", err)
	}
	if v1.ID != "flag-1" || v1.Type != TypeBoundingBox {
		t.Fatalf("fromRecord identity mismatch: %+v", v1)
	}
	if v1.Flag["target"] != "submit button" {
		t.Fatalf("payload lost: %+v", v1.Flag)
	}
	if v1.Result["correct"] != true {
		t.Fatalf("result lost: %+v", v1.Result)
	}
}

func TestFromRecordEmptyPayloads(t *testing.T) {
	v1, err := fromRecord(&store.FlagRecord{ID: "flag-2", Type: "free_form"})
	if err != nil {
		t.Fatalf("fromRecord: %v", err)
	}
	if v1.Flag != nil || v1.Result != nil {
		t.Fatalf("empty payloads should stay nil: %+v", v1)
	}
}
