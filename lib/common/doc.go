// Package common holds configuration and logging setup shared by the
// command line tools and the library packages.
//
// Logging goes through dragonboat's logger package: every package keeps a
// package level logger from logger.GetLogger and InitLoggers installs a
// factory producing lines of the form
//
//	2025/01/02 15:04:05 INFO  | update          | message
package common
