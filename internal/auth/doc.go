// Package auth provides credential checks for the Git HTTP handler.
package auth
