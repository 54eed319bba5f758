package main

import (
	"github.com/symforge/glee"
)

func arrayIndex() int {
	var a [4]byte
	a[1] = 'X'

	i := glee.Int()
	if a[i] == 'X' {
		return 1
	}
	return 0
}
