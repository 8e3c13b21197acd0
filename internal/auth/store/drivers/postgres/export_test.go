package postgres

import "context"

// Truncate empties the users table between subtests sharing one container.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE users`)
	return err
}
