// Package channel provides in-process channels which endpoints deliver replies to,
// and a registry used to resolve channels referenced by name.
package channel
