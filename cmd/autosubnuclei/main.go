// Package main provides the entry point for the autosubnuclei CLI.
//
// autosubnuclei orchestrates a three-phase reconnaissance pipeline
// against a root domain: subdomain enumeration, liveness probing, and
// vulnerability scanning. Progress is checkpointed after every batch so
// an interrupted scan resumes where it left off.
//
// Usage:
//
//	autosubnuclei scan example.com
//	autosubnuclei resume example.com
//
// See --help for all available options.
package main

// main is the entry point for autosubnuclei.
func main() {
	Execute()
}
