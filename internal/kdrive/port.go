package kdrive

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

type portState int

const (
	portIdle portState = iota
	portOpening
	portOpen
	portTerminated
)

// eventQueueSize is the buffer of pending events per port.
const eventQueueSize = 64

type telegramEntry struct {
	key Key
	cb  TelegramCallback
}

// port is one entry of the descriptor table.
//
// Each port runs an event dispatcher for its whole lifetime and a telegram
// dispatcher per open link. Both are joined by stop.
type port struct {
	id    Descriptor
	layer *Layer

	mu          sync.Mutex
	state       portState
	link        Link
	linkDone    *closeOnce
	eventCb     EventCallback
	telegramCbs []telegramEntry
	nextKey     Key

	trace atomic.Bool

	events chan EventCode
	quit   *closeOnce
	wg     sync.WaitGroup
}

func newPort(l *Layer, id Descriptor) *port {
	p := &port{
		id:     id,
		layer:  l,
		events: make(chan EventCode, eventQueueSize),
		quit:   newCloseOnce(),
	}
	p.wg.Add(1)
	go p.eventLoop()
	return p
}

func (p *port) beginOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != portIdle {
		return false
	}
	p.state = portOpening
	return true
}

func (p *port) abortOpen() {
	p.mu.Lock()
	p.state = portIdle
	p.mu.Unlock()
}

// attach installs an open link and starts its telegram dispatcher.
func (p *port) attach(link Link) {
	done := newCloseOnce()

	p.mu.Lock()
	p.link = link
	p.linkDone = done
	p.state = portOpen
	p.mu.Unlock()

	if p.trace.Load() {
		if t, ok := link.(tracer); ok {
			t.SetTrace(p.layer.logger)
		}
	}

	p.wg.Add(1)
	go p.telegramLoop(link, done)
}

// openLink returns the link while the port is open.
func (p *port) openLink() Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != portOpen {
		return nil
	}
	return p.link
}

// closeLink detaches and closes the link. It returns false if the port
// had no link.
func (p *port) closeLink() bool {
	p.mu.Lock()
	if p.state != portOpen && p.state != portTerminated {
		p.mu.Unlock()
		return false
	}
	link, done := p.link, p.linkDone
	p.link, p.linkDone = nil, nil
	p.state = portIdle
	p.mu.Unlock()

	p.emit(EventClosing)
	done.Close()
	if err := link.Close(); err != nil {
		p.layer.logAt(LogWarning, "link close failed", "ap", int(p.id), "error", err)
	}
	p.emit(EventClosed)
	return true
}

// stop ends the event dispatcher after draining queued events and waits
// for all dispatchers of the port.
func (p *port) stop() {
	p.quit.Close()
	p.wg.Wait()
}

func (p *port) setTrace(enabled bool) {
	p.trace.Store(enabled)

	p.mu.Lock()
	link := p.link
	p.mu.Unlock()

	if t, ok := link.(tracer); ok {
		if enabled {
			t.SetTrace(p.layer.logger)
		} else {
			t.SetTrace(nil)
		}
	}
}

func (p *port) traced() bool {
	return p.trace.Load()
}

func (p *port) addTelegramCallback(cb TelegramCallback) Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextKey++
	p.telegramCbs = append(p.telegramCbs, telegramEntry{key: p.nextKey, cb: cb})
	return p.nextKey
}

func (p *port) removeTelegramCallback(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.telegramCbs {
		if e.key == key {
			p.telegramCbs = append(p.telegramCbs[:i:i], p.telegramCbs[i+1:]...)
			return true
		}
	}
	return false
}

// emit queues an event for the event dispatcher. Events raised after
// Release are dropped.
func (p *port) emit(ev EventCode) {
	select {
	case p.events <- ev:
	case <-p.quit.Done():
	}
}

func (p *port) eventLoop() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.events:
			p.dispatchEvent(ev)
		case <-p.quit.Done():
			for {
				select {
				case ev := <-p.events:
					p.dispatchEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *port) dispatchEvent(ev EventCode) {
	p.mu.Lock()
	cb := p.eventCb
	p.mu.Unlock()
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.layer.logAt(LogError, "event callback panic", "ap", int(p.id), "event", ev.String(), "panic", r)
			p.layer.reportError(ErrorCallbackPanic)
		}
	}()
	cb(p.id, ev)
}

// telegramLoop delivers frames from one link until it is closed or lost.
// Its buffer is reused for every frame and belongs to this loop alone: a
// loop of a closed link may still be inside a callback when the port is
// opened again.
func (p *port) telegramLoop(link Link, done *closeOnce) {
	defer p.wg.Done()

	buf := make([]byte, 0, maxAPDULength+16)
	frames := link.Frames()
	for {
		select {
		case <-done.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				p.linkLost(done)
				return
			}
			if done.IsClosed() {
				return
			}
			buf = p.deliver(frame, buf)
		}
	}
}

// deliver copies frame into buf, runs the callbacks on it and clears it.
func (p *port) deliver(frame, buf []byte) []byte {
	if p.trace.Load() {
		p.layer.logAt(LogInformation, "packet trace", "ap", int(p.id), "dir", "rx",
			"frame", telegram.Format(frame))
	}

	p.mu.Lock()
	cbs := make([]telegramEntry, len(p.telegramCbs))
	copy(cbs, p.telegramCbs)
	p.mu.Unlock()

	buf = append(buf[:0], frame...)
	for _, e := range cbs {
		p.invokeTelegram(e, buf)
	}
	clear(buf)
	return buf
}

func (p *port) invokeTelegram(e telegramEntry, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.layer.logAt(LogError, "telegram callback panic", "ap", int(p.id),
				"key", int(e.key), "panic", fmt.Sprint(r))
			p.layer.reportError(ErrorCallbackPanic)
		}
	}()
	e.cb(frame)
}

// linkLost marks the port terminated when its link stopped on its own.
func (p *port) linkLost(done *closeOnce) {
	if done.IsClosed() {
		return
	}

	p.mu.Lock()
	current := p.linkDone == done
	if current && p.state == portOpen {
		p.state = portTerminated
	}
	p.mu.Unlock()
	if !current {
		return
	}

	p.layer.logAt(LogError, "link lost", "ap", int(p.id))
	p.emit(EventTerminated)
	p.layer.reportError(ErrorLinkLost)
}
