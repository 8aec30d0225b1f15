// Package command provides the CommandTable: the immutable mapping from
// infrared command names to device control codes.
//
// The table is loaded once at startup from a line-oriented text file:
//
//	power_on  0x0123
//	power_off 0x0124
//	vol_up    1IkBiQFOABAA
//
// Each line is split on its first run of whitespace. Lines that do not yield
// both a name and a code are skipped without error. A missing file is not
// fatal: LoadTable returns an empty table alongside the error so the caller
// can log it and keep running with no resolvable commands.
//
// A Table is never modified after LoadTable returns and may be shared across
// goroutines without locking.
package command
