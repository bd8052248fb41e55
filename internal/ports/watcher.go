package ports

// Watcher monitors an experiment definition file and triggers re-learning
// when it changes. The adapter (fsnotify) must debounce rapid events
// (editors often trigger multiple writes per save). Only one Watch call
// should be active at a time.
type Watcher interface {
	// Watch starts monitoring the given file. onChange is called after each
	// (debounced) modification. The callback may be invoked from any
	// goroutine. Returns an error if the file doesn't exist or permissions
	// are insufficient.
	Watch(path string, onChange func()) error

	// Stop ends monitoring and releases all resources. After Stop returns,
	// no further onChange calls will fire. Safe to call multiple times.
	Stop() error
}
