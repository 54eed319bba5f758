package main

import (
	"github.com/symforge/glee"
)

func shiftLeft() int {
	n := glee.Uint8()
	var x uint8 = 1
	if x<<n == 0 {
		return 1
	}
	return 0
}

func shiftRight(x int8) int {
	if x>>9 < 0 {
		return 1
	}
	return 0
}
