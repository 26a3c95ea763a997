// Package bstore implements store.IStore on top of a single bbolt file.
// All records live in one bucket keyed by document id. Values are copied
// out of bbolt's memory map before they are returned, so they stay valid
// after the read transaction ends.
//
// Load replaces the bucket within one write transaction: a snapshot that
// fails to decode leaves the previous content untouched.
package bstore
