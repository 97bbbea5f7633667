package errdefs

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrEncodingRecovery = errors.New("encoding recovery failed")
	ErrUpload           = errors.New("upload failed")
	ErrPersist          = errors.New("persist failed")
	ErrConfigMissing    = errors.New("required configuration missing")
)
