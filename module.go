package nativebridge

// Module is a unit of functionality attached to a Session with WithModules.
// Initialize runs once, on the affinity thread, while the session starts. It
// may call back into the session.
type Module interface {
	Name() string
	Initialize(s *Session) error
}

// LifecycleListener is implemented by modules that follow the host's
// foreground state. Hooks run on the affinity thread, once per transition.
type LifecycleListener interface {
	OnResume()
	OnPause()
}

// Destroyer is implemented by modules that hold state to release when the
// session is closed. OnDestroy runs on the affinity thread before the
// session's handles are freed.
type Destroyer interface {
	OnDestroy()
}
