package host

// withBeforeUnpack installs a hook that runs after the manifest is read and
// before the archive is unpacked, so tests can hold a load open.
func withBeforeUnpack(f func(appID string)) Option {
	return func(r *Runtime) { r.beforeUnpack = f }
}
