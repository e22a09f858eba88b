//go:build tools

// Package ensemblechat tracks tool dependencies used through go generate.
// Importing mockgen here keeps its version recorded in go.mod.
package ensemblechat

import (
	_ "go.uber.org/mock/mockgen"
)
