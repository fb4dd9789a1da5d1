//go:build codekb_debug

package graph

// assertConsistent panics when the reverse index diverges from the edge set.
func assertConsistent(s *state) {
	if err := s.verify(); err != nil {
		panic("graph: index divergence: " + err.Error())
	}
}
