// Package middleware wraps a ports.DictStore with behavior applied to every
// snapshot: encryption at rest and masking of sensitive keys.
package middleware

import "github.com/aretw0/switchboard/pkg/ports"

// Middleware allows wrapping a DictStore to add behavior.
type Middleware func(ports.DictStore) ports.DictStore

// Chain applies mws so that the first one is outermost.
func Chain(store ports.DictStore, mws ...Middleware) ports.DictStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
