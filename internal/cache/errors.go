package cache

import "errors"

var (
	ErrCache = errors.New("cache operation failed")
)
