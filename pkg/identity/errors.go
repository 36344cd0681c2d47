package identity

import "errors"

// ErrIdentityCreation is returned when a user name cannot be resolved to an
// entity even after anchoring it in the memory store.
var ErrIdentityCreation = errors.New("identity creation failed")

// ErrEmptyUserName is returned when resolution is attempted with a blank name.
var ErrEmptyUserName = errors.New("user name is empty")
