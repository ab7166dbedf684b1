package main

import (
	"errors"
	"net"
	"time"
)

type handleKind uint8

const (
	handleAny handleKind = iota
	handleTimer
	handleTCP
)

func (k handleKind) String() string {
	switch k {
	case handleTimer:
		return "timer"
	case handleTCP:
		return "tcp"
	}
	return "handle"
}

// Lifecycle of a handle. Open handles may be armed and re-armed; a handle
// that has been asked to close is dead to the interpreter, and its registry
// slot is reclaimed only when the close completion runs.
type handleState uint8

const (
	handleOpen handleState = iota
	handleClosing
	handleReleased
)

var (
	errHandleKind   = errors.New("handle type mismatch")
	errClosedHandle = errors.New("use of closed handle")
)

// handleID names a live I/O resource in the registry; 0 means none.
type handleID uint32

// handle is one live I/O resource. The registry owns it; stack values
// refer to it by id only. At most one primary callback quotation is
// attached; re-arming replaces and frees the prior one.
type handle struct {
	id    handleID
	kind  handleKind
	state handleState
	vm    *VM

	cb    quoteID
	armed bool // holds one active ref on the loop

	timer    *time.Timer
	repeat   time.Duration
	local    *net.TCPAddr // recorded by uv:tcp-bind
	conn     net.Conn
	listener net.Listener
}

type handles struct {
	live map[handleID]*handle
	next handleID
}

func (hs *handles) add(h *handle) {
	if hs.live == nil {
		hs.live = make(map[handleID]*handle)
	}
	hs.next++
	h.id = hs.next
	hs.live[h.id] = h
}

func (hs *handles) get(id handleID) *handle {
	return hs.live[id]
}

func (hs *handles) release(id handleID) {
	delete(hs.live, id)
}

func (vm *VM) newHandle(kind handleKind) *handle {
	h := &handle{kind: kind, state: handleOpen, vm: vm}
	vm.handles.add(h)
	return h
}

// popHandle pops a Handle value and resolves it against the registry,
// checking the kind when a specific one is wanted. Closing and released
// handles must not be observed again.
func (vm *VM) popHandle(want handleKind) *handle {
	v := vm.pop()
	if v.kind != valHandle {
		vm.halt(typeError(valHandle))
	}
	h := vm.handles.get(v.h)
	if h == nil || h.state != handleOpen {
		vm.halt(errClosedHandle)
	}
	if want != handleAny && h.kind != want {
		vm.halt(errHandleKind)
	}
	return h
}

// setCallback replaces the primary callback quotation, releasing any prior
// one back to the store.
func (h *handle) setCallback(id quoteID) {
	if h.cb != 0 {
		h.vm.quotes.release(h.cb)
	}
	h.cb = id
}

// arm takes one active ref on the loop for this handle; disarm gives it
// back. Both run only on the loop goroutine and are idempotent.
func (h *handle) arm() {
	if !h.armed {
		h.armed = true
		h.vm.loop.active++
	}
}

func (h *handle) disarm() {
	if h.armed {
		h.armed = false
		h.vm.loop.active--
	}
}

// close requests asynchronous teardown: resources stop now, pumps drain
// out, and the registry slot and callback quotation are reclaimed when the
// completion callback runs on the loop. After this the handle is
// unobservable from the interpreter.
func (h *handle) close() {
	h.state = handleClosing
	if h.timer != nil {
		h.timer.Stop()
	}
	if h.listener != nil {
		h.listener.Close()
	}
	if h.conn != nil {
		h.conn.Close()
	}
	h.disarm()
	vm := h.vm
	vm.loop.active++
	vm.loop.enqueue(func() {
		vm.loop.active--
		h.state = handleReleased
		h.setCallback(0)
		vm.handles.release(h.id)
	})
}
