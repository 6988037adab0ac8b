// Package internal contains the configuration, logging and cleanup plumbing of the
// gitserve binary.
package internal
