package runner

import (
	"github.com/gohugoio/hugo/watcher/filenotify"
)

func newWatcher(cfg *Config) (filenotify.FileWatcher, error) {
	if !cfg.Watch.Poll {
		return filenotify.NewEventWatcher()
	}

	return filenotify.NewPollingWatcher(cfg.pollInterval()), nil
}
