package main

import (
	"github.com/symforge/glee"
)

func divide() int {
	x := glee.Int()
	return 100 / x
}

func remainder() uint8 {
	x := glee.Uint8()
	return x % 2
}
