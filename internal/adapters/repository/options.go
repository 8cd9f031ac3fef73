package repository

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithMaxOpenConns caps the connection pool. In-memory databases always
// use a single connection because each connection gets its own database.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithBusyTimeoutMillis sets how long a writer waits on a locked database.
func WithBusyTimeoutMillis(ms int) Option {
	return func(s *SQLiteStore) {
		if ms >= 0 {
			s.busyTimeoutMs = ms
		}
	}
}
