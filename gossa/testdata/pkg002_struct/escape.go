package main

import (
	"github.com/symforge/glee"
)

func escape() int {
	t := newT(glee.Int32())
	if t.D-int32(t.A) == 40 {
		return 1
	}
	return 0
}

func newT(d int32) *T {
	return &T{A: 2, D: d}
}
