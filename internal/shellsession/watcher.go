package shellsession

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	watcherUnavailableMessageConstant = "signal file watcher unavailable, polling only"
	watcherErrorMessageConstant       = "signal file watcher error"
)

// signalWatcher turns filesystem events on the signal files into wake-ups for the detector.
// A nil watcher is valid and never wakes.
type signalWatcher struct {
	watcher *fsnotify.Watcher
	wake    chan struct{}
	done    chan struct{}
}

func newSignalWatcher(logger *zap.Logger, files signalFiles) *signalWatcher {
	watcher, creationError := fsnotify.NewWatcher()
	if creationError != nil {
		logger.Debug(watcherUnavailableMessageConstant, zap.Error(creationError))
		return nil
	}
	if addError := watcher.Add(files.directory()); addError != nil {
		logger.Debug(watcherUnavailableMessageConstant, zap.Error(addError))
		_ = watcher.Close()
		return nil
	}

	watched := make(map[string]struct{}, 3)
	for _, path := range []string{files.status, files.stdout, files.stderr} {
		watched[path] = struct{}{}
	}

	signal := &signalWatcher{
		watcher: watcher,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go signal.forward(logger, watched)
	return signal
}

func (signal *signalWatcher) forward(logger *zap.Logger, watched map[string]struct{}) {
	defer close(signal.done)
	for {
		select {
		case event, open := <-signal.watcher.Events:
			if !open {
				return
			}
			if _, relevant := watched[event.Name]; !relevant || !event.Has(fsnotify.Write) {
				continue
			}
			select {
			case signal.wake <- struct{}{}:
			default:
			}
		case watchError, open := <-signal.watcher.Errors:
			if !open {
				return
			}
			logger.Debug(watcherErrorMessageConstant, zap.Error(watchError))
		}
	}
}

// Wake returns the channel signalled on writes; nil when the watcher is absent.
func (signal *signalWatcher) Wake() <-chan struct{} {
	if signal == nil {
		return nil
	}
	return signal.wake
}

func (signal *signalWatcher) Close() error {
	if signal == nil {
		return nil
	}
	closeError := signal.watcher.Close()
	<-signal.done
	return closeError
}
