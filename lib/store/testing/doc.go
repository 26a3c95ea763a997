// Package testing provides a shared test suite for store.IStore
// implementations. Every backend calls RunStoreTests from its own tests
// with a factory producing empty stores.
package testing
