// Package watcher detects drift: changes to an installation made outside of
// themeupdater, such as a manual upload or an edit over SFTP.
//
// The Watcher subscribes to filesystem events for every directory of the
// installation tree, waits for a burst of events to settle, and records one
// "drift" history entry per burst. Bursts that overlap a themeupdater
// operation (the installation lock is held, or an operation finished a
// moment ago) are not drift and are ignored.
//
// The package also carries the PID file helpers used to run the API server
// in the background.
//
// Example usage:
//
//	w, err := watcher.New(root, resolver.Current, st,
//		watcher.WithLockCheck(eng.Locked))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
