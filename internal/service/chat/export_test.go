package chat

// ExpireInactive runs one janitor pass.
func (s *Service) ExpireInactive() (expired, evicted int) {
	return s.expireInactive()
}
