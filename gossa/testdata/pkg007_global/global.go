package main

var counter int = 40

func increment() int {
	counter++
	counter += 1
	return counter
}
