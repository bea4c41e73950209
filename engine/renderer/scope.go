package renderer

// Scope collects the release functions of a multi-step creation. Release
// runs them in reverse order unless the scope was committed, so a creation
// that fails halfway only leaves behind what it already handed out.
//
//	var scope Scope
//	defer scope.Release()
//	...
//	scope.Commit()
type Scope struct {
	releases  []func()
	committed bool
}

func (s *Scope) Defer(fn func()) {
	s.releases = append(s.releases, fn)
}

// Commit transfers ownership of everything acquired to the caller.
func (s *Scope) Commit() {
	s.committed = true
}

func (s *Scope) Release() {
	if s.committed {
		return
	}
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
}
