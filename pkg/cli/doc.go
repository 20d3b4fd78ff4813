// Package cli implements the mockserver command line.
//
// "mockserver serve" runs the engine and its admin API in the foreground.
// The remaining commands (add, remove, list, peek) talk to a running
// server through the admin API.
package cli
