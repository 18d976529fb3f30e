package system

import "errors"

// Close releases the browser and the knowledge store.
func (s *System) Close() error {
	if s == nil {
		return nil
	}

	var errs []error
	if s.Fetch != nil {
		if err := s.Fetch.Close(); err != nil {
			errs = append(errs, err)
		}
		s.Fetch = nil
	}
	if s.Knowledge != nil {
		if err := s.Knowledge.Close(); err != nil {
			errs = append(errs, err)
		}
		s.Knowledge = nil
	}
	return errors.Join(errs...)
}
