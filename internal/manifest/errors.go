package manifest

import "errors"

var (
	ErrDefinition = errors.New("invalid manifest")
)
