package sim

// RunEvent is an operator-facing entry in the run journal.
type RunEvent struct {
	Timestamp string `json:"ts"`
	Type      string `json:"type"`
	Station   string `json:"station,omitempty"`
	Details   string `json:"details"`
}

// Journal returns a copy of all recorded run events.
func (d *Driver) Journal() []RunEvent {
	d.jmu.Lock()
	defer d.jmu.Unlock()
	events := make([]RunEvent, len(d.journal))
	copy(events, d.journal)
	return events
}

// JournalSince returns the events recorded after index idx.
func (d *Driver) JournalSince(idx int) []RunEvent {
	d.jmu.Lock()
	defer d.jmu.Unlock()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.journal) {
		return nil
	}
	events := make([]RunEvent, len(d.journal)-idx)
	copy(events, d.journal[idx:])
	return events
}

func (d *Driver) logEvent(t, station, details string) {
	d.jmu.Lock()
	defer d.jmu.Unlock()
	d.journal = append(d.journal, RunEvent{Timestamp: d.now().Format("2006-01-02T15:04:05.000Z07:00"), Type: t, Station: station, Details: details})
}
