//go:build !cgo

package main

// main is required for a main package; exports.go provides it when cgo is enabled.
func main() {}
