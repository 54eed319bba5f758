package glee

// The functions below are markers for programs explored through the Go
// frontend. Calls to them are replaced by intrinsics; their bodies never run
// under exploration.

// Assume restricts the current path to executions where cond holds.
func Assume(cond bool) {}

// Assert fails the current path if cond can be false.
func Assert(cond bool) {}

// Bool returns a symbolic boolean.
func Bool() bool { return false }

// Byte returns a symbolic byte.
func Byte() byte { return 0 }

// Int returns a symbolic signed integer with the target's integer width.
func Int() int { return 0 }

// Int8 returns a symbolic 8-bit signed integer.
func Int8() int8 { return 0 }

// Int16 returns a symbolic 16-bit signed integer.
func Int16() int16 { return 0 }

// Int32 returns a symbolic 32-bit signed integer.
func Int32() int32 { return 0 }

// Int64 returns a symbolic 64-bit signed integer.
func Int64() int64 { return 0 }

func Uint() uint     { return 0 }
func Uint8() uint8   { return 0 }
func Uint16() uint16 { return 0 }
func Uint32() uint32 { return 0 }
func Uint64() uint64 { return 0 }
