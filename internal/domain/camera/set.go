package camera

import "fmt"

// Set is an immutable, id-indexed view of the configured cameras.
// Safe for concurrent readers; it is never mutated after NewSet.
type Set struct {
	byID  map[string]Camera
	order []string
}

// NewSet indexes cams by id. Duplicate ids are rejected.
func NewSet(cams []Camera) (*Set, error) {
	s := &Set{
		byID:  make(map[string]Camera, len(cams)),
		order: make([]string, 0, len(cams)),
	}
	for _, c := range cams {
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate camera id %q", c.ID)
		}
		s.byID[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return s, nil
}

// Find returns the camera with the given id.
func (s *Set) Find(id string) (Camera, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// All returns the cameras in configuration order.
func (s *Set) All() []Camera {
	out := make([]Camera, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *Set) Len() int { return len(s.order) }
