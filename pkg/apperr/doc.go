// Package apperr defines the coarse error kinds surfaced by the Hangar
// services. Handlers map kinds to HTTP status codes; everything that is not
// an *apperr.Error propagates as an internal error.
package apperr
