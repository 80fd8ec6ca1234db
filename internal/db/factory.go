package db

// Open resolves a Config into a concrete backend instance. This is the only
// place engine and mode selection lives; everything else works against the
// Database interface.
//
// The returned backend has not connected yet; Connect (or the first
// operation) establishes the connection lazily.
func Open(cfg Config) (Database, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBlocking
	}
	if cfg.Mode != ModeBlocking && cfg.Mode != ModeNonBlocking {
		return nil, &ConfigError{Field: "mode", Value: string(cfg.Mode)}
	}

	switch cfg.Engine {
	case EngineSQLite:
		base := newSQLite(cfg.Target)
		if cfg.Mode == ModeNonBlocking {
			return newWorker(base), nil
		}
		return base, nil
	case EnginePostgres:
		if cfg.Mode == ModeNonBlocking {
			return newPgxPool(cfg), nil
		}
		return newPostgres(cfg), nil
	default:
		return nil, &ConfigError{Field: "engine", Value: string(cfg.Engine)}
	}
}
