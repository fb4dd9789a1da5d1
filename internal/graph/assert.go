//go:build !codekb_debug

package graph

// assertConsistent is a no-op outside codekb_debug builds; callers use Verify.
func assertConsistent(*state) {}
