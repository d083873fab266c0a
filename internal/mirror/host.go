package mirror

// SessionChecker answers whether a user session is active in the host
// application. Scheduled backups only run while one is.
type SessionChecker interface {
	IsActive() (bool, error)
}

// PreferenceReloader marks a named preference store dirty so the host's
// preference layer re-reads it on next access.
type PreferenceReloader interface {
	Reload(name string) error
}
