package artifact

import (
	"sync/atomic"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// Holder publishes the live artifact bundle to concurrent readers. Readers
// take one snapshot per request and never observe a partial swap.
type Holder struct {
	current    atomic.Pointer[model.ArtifactBundle]
	publishing atomic.Pointer[string]
}

func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the live bundle, or *model.ArtifactMissingError before
// the first model is loaded.
func (h *Holder) Current() (*model.ArtifactBundle, error) {
	b := h.current.Load()
	if b == nil {
		return nil, &model.ArtifactMissingError{Artifact: "model snapshot"}
	}
	return b, nil
}

// Swap publishes next and returns the previous bundle, or nil.
func (h *Holder) Swap(next *model.ArtifactBundle) *model.ArtifactBundle {
	return h.current.Swap(next)
}

// Loaded reports whether a bundle is being served.
func (h *Holder) Loaded() bool {
	return h.current.Load() != nil
}

// BeginPublish marks version as being published by this process until the
// returned func is called. The watcher leaves such versions to the
// publisher.
func (h *Holder) BeginPublish(version string) (end func()) {
	v := version
	h.publishing.Store(&v)
	return func() { h.publishing.CompareAndSwap(&v, nil) }
}

// Publishing reports whether version is being published in process.
func (h *Holder) Publishing(version string) bool {
	v := h.publishing.Load()
	return v != nil && *v == version
}
