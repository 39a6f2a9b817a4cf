package importer

// scheduler.go triggers runs in the background, either on a cron schedule or
// when files land in the import directory. Both loops are long-running and
// stop when their context is cancelled; a failed run is logged and does not
// stop the loop.

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

func (im *Importer) schedule(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { im.runLogged(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	im.logger.Info("import scheduler started", "schedule", spec)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	im.logger.Info("import scheduler stopped")
	return nil
}

// Watch runs an import once the directory has been quiet for the settle
// period after a CSV file was created or written. It blocks until ctx is
// done. Files already present are imported first.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(im.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", im.cfg.Dir, err)
	}
	im.logger.Info("import watcher started", "settle", im.cfg.Settle)

	im.runLogged(ctx)

	settle := time.NewTimer(im.cfg.Settle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			im.logger.Info("import watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isCSV(ev.Name) && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				settle.Reset(im.cfg.Settle)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Warn("watcher error", "error", err)

		case <-settle.C:
			im.runLogged(ctx)
		}
	}
}
