package core

import "errors"

// Error kinds surfaced by the store and the tool layer. The dispatch
// loop converts all of them except ErrModelUnavailable into tool-result
// turns so the model can explain the failure to the user.
var (
	ErrStorageUnavailable = errors.New("opportunity storage unavailable")
	ErrDuplicateID        = errors.New("opportunity id already exists")
	ErrNotFound           = errors.New("opportunity not found")
	ErrAmbiguous          = errors.New("identifier matches more than one opportunity")
	ErrInvalidQuery       = errors.New("invalid query expression")
	ErrFileSystem         = errors.New("file operation failed")
	ErrModelUnavailable   = errors.New("language model unavailable")
)
