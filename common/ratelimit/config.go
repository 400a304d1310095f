package ratelimit

// Config bounds tag writes per window.
type Config struct {
	// WriteLimit is the total mutations allowed per window, service-wide.
	WriteLimit int64

	// EnvironmentLimit is the mutations allowed per environment per window.
	EnvironmentLimit int64

	// WindowSeconds is the counting window.
	WindowSeconds int
}

// DefaultConfig allows generous but bounded write rates: deployments are
// infrequent, so anything past these limits is a misbehaving client.
var DefaultConfig = Config{
	WriteLimit:       300,
	EnvironmentLimit: 60,
	WindowSeconds:    60,
}
