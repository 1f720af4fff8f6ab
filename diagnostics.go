package cursormgr

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/routegrid/cursormgr/ringlog"
)

// Diagnostics is a structured snapshot of the manager's indices, counters and
// recent lifecycle history, serialized on demand to debug cursor leaks and
// lifecycle races.
type Diagnostics struct {
	ShuttingDown    bool                   `json:"shuttingDown"`
	CursorsTimedOut int64                  `json:"cursorsTimedOut"`
	Namespaces      []NamespaceDiagnostics `json:"namespaces"`
	Events          []ringlog.Event        `json:"events"`
}

// NamespaceDiagnostics summarizes one namespace container.
type NamespaceDiagnostics struct {
	Namespace string             `json:"namespace"`
	Prefix    uint32             `json:"prefix"`
	Cursors   []CursorDiagnostic `json:"cursors"`
}

// CursorDiagnostic summarizes one entry without exposing cursor internals.
type CursorDiagnostic struct {
	ID          CursorID  `json:"id"`
	Pinned      bool      `json:"pinned"`
	KillPending bool      `json:"killPending"`
	Lifetime    string    `json:"lifetime"`
	LastActive  time.Time `json:"lastActive"`
}

// DumpDiagnostics snapshots the current state under the mutex. Namespaces
// and cursors are sorted for stable output.
func (m *Manager) DumpDiagnostics() Diagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := Diagnostics{
		ShuttingDown:    m.inShutdown,
		CursorsTimedOut: m.cursorsTimedOut,
		Events:          m.ring.Snapshot(),
	}
	for namespace, container := range m.containers {
		nd := NamespaceDiagnostics{
			Namespace: namespace,
			Prefix:    container.prefix,
		}
		for id, entry := range container.entries {
			nd.Cursors = append(nd.Cursors, CursorDiagnostic{
				ID:          id,
				Pinned:      entry.isPinned(),
				KillPending: entry.killPending,
				Lifetime:    entry.lifetime.String(),
				LastActive:  entry.lastActive,
			})
		}
		sort.Slice(nd.Cursors, func(i, j int) bool { return nd.Cursors[i].ID < nd.Cursors[j].ID })
		d.Namespaces = append(d.Namespaces, nd)
	}
	sort.Slice(d.Namespaces, func(i, j int) bool { return d.Namespaces[i].Namespace < d.Namespaces[j].Namespace })
	return d
}

// LogManagerInfo writes the full diagnostics document through the package
// logger. Intended for rare, operator-triggered debugging.
func (m *Manager) LogManagerInfo() {
	d := m.DumpDiagnostics()
	buf, err := json.Marshal(d)
	if err != nil {
		log.Error("failed to serialize cursor manager diagnostics", "error", err)
		return
	}
	log.Info("cursor manager state", "state", string(buf))
}
