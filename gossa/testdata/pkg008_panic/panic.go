package main

import (
	"github.com/symforge/glee"
)

func mustPositive() int {
	x := glee.Int8()
	if x < 0 {
		panic("negative")
	}
	return int(x)
}
