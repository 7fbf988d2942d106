package catalog

import "github.com/google/uuid"

// IDFunc adapts a plain function to IDProvider.
type IDFunc func() (string, error)

func (f IDFunc) NewID() (string, error) {
	return f()
}

// NewUUIDProvider issues UUIDv7 identifiers, which sort in creation order.
func NewUUIDProvider() IDProvider {
	return IDFunc(func() (string, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	})
}
