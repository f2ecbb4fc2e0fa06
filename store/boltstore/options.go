package boltstore

import (
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/internal/options"
	"go.uber.org/zap"
)

// Option configures a Store at Open.
type Option = options.Option[*Store]

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithReadOnly opens the file with a shared lock and rejects every mutation.
func WithReadOnly() Option {
	return options.NoError(func(s *Store) {
		s.readOnly = true
	})
}

// WithTimeout bounds how long Open waits for the file lock. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return options.New(func(s *Store) error {
		if d < 0 {
			return fmt.Errorf("%w: negative lock timeout %s", errs.ErrInvalidConfig, d)
		}
		s.timeout = d

		return nil
	})
}

// WithCompression sets the page compression for datasets created without one.
func WithCompression(ct format.CompressionType) Option {
	return options.New(func(s *Store) error {
		if ct < format.CompressionNone || ct > format.CompressionLZ4 {
			return fmt.Errorf("%w: %d", errs.ErrInvalidCompression, ct)
		}
		s.compression = ct

		return nil
	})
}
