package main

import (
	"github.com/symforge/glee"
)

func simple() int {
	var t T
	t.A = 5
	t.B = glee.Int()
	t.C = 7
	t.D = 8

	if int(t.A)+t.B == t.C {
		return 1
	}
	return 0
}

type T struct {
	A    int8
	B, C int
	D    int32
}
