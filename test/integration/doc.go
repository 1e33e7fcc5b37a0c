// Package integration exercises the runtime components together.
package integration
