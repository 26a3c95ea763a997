// Package transcode converts between JSON, msgpack and the binary document
// format for the encode and decode commands.
package transcode
