package main

import (
	"github.com/symforge/glee"
)

func even() {
	x := glee.Uint8()
	glee.Assume(x < 100)
	glee.Assert(x%2 == 0)
}

func flags(a, b bool) int {
	if a && !b {
		return 1
	}
	return 0
}
