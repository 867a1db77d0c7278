// Package watch turns host clock and timezone changes into trigger causes.
//
// ClockWatcher samples the clock on an interval and reports a wall-clock
// jump (time_changed) or a calendar date change (date_changed).
// TimezoneWatcher follows the zoneinfo file with fsnotify, swaps the
// process zone and reports timezone_changed.
package watch

import (
	"context"

	"git.home.luguber.info/inful/dayroll/internal/cause"
)

// Handler receives detected causes. The trigger router implements it.
type Handler interface {
	Trigger(ctx context.Context, c cause.Cause)
}
