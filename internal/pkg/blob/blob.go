// Package blob abstracts binary object storage for session artifacts
// (images, model files). Keys are laid out {prefix}/{sessionID}/{artifact}.
package blob

import "context"

// Store is the external blob storage collaborator. Put must durably
// store the object before returning; attach flows rely on the object
// surviving a failed metadata update so the attach can be retried.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}
