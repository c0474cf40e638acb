package embedding

import "errors"

var (
	// ErrNoBackend is returned when every configured backend failed or none
	// could be constructed.
	ErrNoBackend = errors.New("no embedding backend available")

	// ErrVectorCount indicates a backend returned a different number of
	// vectors than texts it was given.
	ErrVectorCount = errors.New("backend returned wrong number of vectors")
)
