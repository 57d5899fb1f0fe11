package djidevice

// PairerEventKind enumerates the signals the pairing subsystem emits.
type PairerEventKind int

const (
	PairingComplete PairerEventKind = iota
	WiFiConnected
	WiFiScanReport
	PairerFailed
)

// PairerEvent is one notification from the pairing subsystem. Scan is only
// populated for WiFiScanReport; Err only for PairerFailed.
type PairerEvent struct {
	Kind PairerEventKind
	Scan []byte
	Err  error
}

// StreamerEventKind enumerates the signals the streaming subsystem emits.
type StreamerEventKind int

const (
	PrepareComplete StreamerEventKind = iota
	StreamStarted
	StreamStopped
	BatteryChanged
	StreamerFailed
)

// StreamerEvent is one notification from the streaming subsystem. Battery
// is only populated for BatteryChanged; Err only for StreamerFailed.
type StreamerEvent struct {
	Kind    StreamerEventKind
	Battery int
	Err     error
}

// pairerListeners (and streamerListeners below) is a tiny fan-out registry. Every mutation and every fire()
// happens on the owning Session's single executor goroutine, so no
// synchronization is needed here.
type pairerListeners struct {
	next  int
	funcs map[int]func(PairerEvent)
}

func (l *pairerListeners) add(fn func(PairerEvent)) int {
	if l.funcs == nil {
		l.funcs = make(map[int]func(PairerEvent))
	}
	id := l.next
	l.next++
	l.funcs[id] = fn
	return id
}

func (l *pairerListeners) remove(id int) { delete(l.funcs, id) }

func (l *pairerListeners) fire(e PairerEvent) {
	for _, fn := range l.funcs {
		fn(e)
	}
}

type streamerListeners struct {
	next  int
	funcs map[int]func(StreamerEvent)
}

func (l *streamerListeners) add(fn func(StreamerEvent)) int {
	if l.funcs == nil {
		l.funcs = make(map[int]func(StreamerEvent))
	}
	id := l.next
	l.next++
	l.funcs[id] = fn
	return id
}

func (l *streamerListeners) remove(id int) { delete(l.funcs, id) }

func (l *streamerListeners) fire(e StreamerEvent) {
	for _, fn := range l.funcs {
		fn(e)
	}
}
