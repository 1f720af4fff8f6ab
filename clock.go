package cursormgr

import "time"

// Clock supplies wall time for last-active stamps. Injected so tests and the
// reaper can control time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
