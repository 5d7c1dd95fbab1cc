package repository

import "errors"

// ErrUnknownCollection is returned when a collection name is not one of model.Collections.
var ErrUnknownCollection = errors.New("unknown collection")
