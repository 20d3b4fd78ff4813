// Package util provides small string helpers shared by the engine and the CLI.
package util
