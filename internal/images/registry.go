package images

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// PreviewScheme prefixes every local preview reference.
const PreviewScheme = "preview:"

// ErrPreviewRevoked indicates that a preview reference is unknown or already released.
var ErrPreviewRevoked = errors.New("images: preview revoked")

// Preview is a revocable local reference to a selected image.
type Preview struct {
	Reference   string
	Name        string
	ContentType string
	Width       int
	Height      int
	Bytes       int
}

// Registry owns the bytes behind live preview references.
type Registry struct {
	mu   sync.Mutex
	live map[string]File
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[string]File)}
}

func (r *Registry) create(file File) (*Preview, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	reference := PreviewScheme + id.String()
	width, height := decodeBounds(file.Data)

	r.mu.Lock()
	r.live[reference] = file
	r.mu.Unlock()

	return &Preview{
		Reference:   reference,
		Name:        file.Name,
		ContentType: file.ContentType,
		Width:       width,
		Height:      height,
		Bytes:       file.Size(),
	}, nil
}

// Open returns the image behind a live reference.
func (r *Registry) Open(reference string) (File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.live[reference]
	if !ok {
		return File{}, ErrPreviewRevoked
	}
	return file, nil
}

// Revoke releases a reference. Revoking twice is a no-op.
func (r *Registry) Revoke(reference string) {
	r.mu.Lock()
	delete(r.live, reference)
	r.mu.Unlock()
}

// Live reports the number of unreleased references.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
