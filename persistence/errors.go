package persistence

import "errors"

// ErrStore wraps every failure reported by the durable store gateway.
var ErrStore = errors.New("store error")

// ErrPermanent marks gateway errors that a retry cannot fix, such as a
// document the backend refuses to hold.
var ErrPermanent = errors.New("permanent store error")
