package archive

// EntryNameSet records the entry names claimed in an output archive. The
// first writer of a name wins; later writers are told to skip.
type EntryNameSet struct {
	seen  map[string]struct{}
	order []string
}

// NewEntryNameSet creates an empty set.
func NewEntryNameSet() *EntryNameSet {
	return &EntryNameSet{seen: make(map[string]struct{})}
}

// Claim records name and reports whether the caller is its first writer.
func (s *EntryNameSet) Claim(name string) bool {
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	s.order = append(s.order, name)
	return true
}

// Contains reports whether name has been claimed.
func (s *EntryNameSet) Contains(name string) bool {
	_, ok := s.seen[name]
	return ok
}

// Len returns the number of claimed names.
func (s *EntryNameSet) Len() int { return len(s.order) }

// Names returns the claimed names in claim order.
func (s *EntryNameSet) Names() []string {
	return append([]string(nil), s.order...)
}
