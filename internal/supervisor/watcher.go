package supervisor

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchDevices watches dir for chamber device nodes being created or
// removed and forwards matching events to sup.HandleDeviceEvent. It runs until the watcher is closed.
func WatchDevices(sup *Supervisor, dir string, log zerolog.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					sup.HandleDeviceEvent(event.Name, true)
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					sup.HandleDeviceEvent(event.Name, false)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("device watcher error")
			}
		}
	}()
	return watcher, nil
}
