// Package img normalises image references attached to environment states.
package img

import (
	"strings"

	"github.com/agentsea/taskara/internal/errs"
)

// Converter normalises a batch of image references into stable URLs.
// Implementations may upload to object storage; the default accepts
// references that are already addressable.
type Converter interface {
	ConvertImages(images []string) ([]string, error)
}

// Passthrough accepts http(s) URLs and data URIs unchanged.
type Passthrough struct{}

// ConvertImages validates each reference and returns them unchanged.
func (Passthrough) ConvertImages(images []string) ([]string, error) {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if !addressable(img) {
			return nil, errs.Validation("image reference must be an http(s) URL or data URI")
		}
		out = append(out, img)
	}
	return out, nil
}

func addressable(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:")
}
