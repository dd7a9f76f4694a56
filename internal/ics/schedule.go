package ics

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "dayplan/internal/log"
)

// Schedule runs im.Run for cals on the standard 5-field cron spec until ctx
// is done. Runs never overlap; a tick that fires while the previous import
// is still busy is skipped.
func Schedule(ctx context.Context, spec string, loc *time.Location, im *Importer, cals []Calendar) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		if _, err := im.Run(ctx, cals); err != nil {
			appLog.Warn("scheduled ics import finished with errors", "err", err.Error())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ics: invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	appLog.Info("ics import scheduled", "spec", spec, "calendars", len(cals))
	return c, nil
}
