package main

import (
	"io"
	"net"
	"strconv"
	"time"
)

// The uv: vocabulary bridges the event loop into the interpreter. Each
// arming primitive takes a quotation off the stack and stores it on the
// handle; when the event fires, the loop pushes the event's values and
// re-enters the interpreter on the stored quotation. Loop-level errors are
// reported, not fatal: the offending operation is treated as not having
// taken effect.
func (vm *VM) addLoopWords() {
	vm.dict.definePrim("uv:run", primUVRun)
	vm.dict.definePrim("uv:timer", primUVTimer)
	vm.dict.definePrim("uv:timer-start", primUVTimerStart)
	vm.dict.definePrim("uv:timer-stop", primUVTimerStop)
	vm.dict.definePrim("uv:close", primUVClose)

	vm.dict.definePrim("uv:tcp", primUVTCP)
	vm.dict.definePrim("uv:tcp-bind", primUVTCPBind)
	vm.dict.definePrim("uv:listen", primUVListen)
	vm.dict.definePrim("uv:read-start", primUVReadStart)
	vm.dict.definePrim("uv:tcp-connect", primUVTCPConnect)
	vm.dict.definePrim("uv:write", primUVWrite)
}

func primUVRun(vm *VM) {
	vm.runLoop()
}

// ( -- handle )
func primUVTimer(vm *VM) {
	h := vm.newHandle(handleTimer)
	vm.push(handleValue(h.id))
}

// ( handle timeout repeat quotation -- )
func primUVTimerStart(vm *VM) {
	q := vm.popQuote()
	repeat := vm.popInt()
	timeout := vm.popInt()
	h := vm.popHandle(handleTimer)
	h.setCallback(q)
	h.repeat = time.Duration(repeat) * time.Millisecond
	if h.timer != nil {
		h.timer.Stop()
	}
	h.arm()
	h.timer = time.AfterFunc(time.Duration(timeout)*time.Millisecond, func() {
		h.vm.loop.post(func() { h.fire() })
	})
}

// fire runs on the loop goroutine each time the timer expires: re-arm or
// disarm first, then push the timer handle and run the stored quotation.
func (h *handle) fire() {
	if h.state != handleOpen || !h.armed {
		return
	}
	if h.repeat > 0 {
		h.timer.Reset(h.repeat)
	} else {
		h.disarm()
	}
	h.vm.push(handleValue(h.id))
	h.vm.execQuote(h.cb)
}

// ( handle -- )
func primUVTimerStop(vm *VM) {
	h := vm.popHandle(handleTimer)
	if h.timer != nil {
		h.timer.Stop()
	}
	h.disarm()
}

// ( handle -- )
func primUVClose(vm *VM) {
	h := vm.popHandle(handleAny)
	h.close()
}

// ( -- handle )
func primUVTCP(vm *VM) {
	h := vm.newHandle(handleTCP)
	vm.push(handleValue(h.id))
}

// ( handle ip port -- )
func primUVTCPBind(vm *VM) {
	port := vm.popInt()
	ip := vm.popString()
	h := vm.popHandle(handleTCP)
	addr, err := net.ResolveTCPAddr("tcp4", net.JoinHostPort(string(ip), strconv.FormatInt(port, 10)))
	if err != nil {
		vm.reportf("uv:tcp-bind: %v", err)
		return
	}
	h.local = addr
}

// ( handle backlog quotation -- )
func primUVListen(vm *VM) {
	q := vm.popQuote()
	vm.popInt() // backlog; the host network stack manages its own queue
	h := vm.popHandle(handleTCP)
	h.setCallback(q)
	ln, err := net.ListenTCP("tcp4", h.local)
	if err != nil {
		vm.reportf("uv:listen: %v", err)
		return
	}
	h.listener = ln
	h.arm()
	go h.acceptPump(ln)
}

// acceptPump posts one event per accepted client and ends when the
// listener dies, by close or by error.
func (h *handle) acceptPump(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		h.vm.loop.post(func() { h.accepted(conn) })
	}
}

func (h *handle) accepted(conn net.Conn) {
	if h.state != handleOpen {
		conn.Close()
		return
	}
	client := h.vm.newHandle(handleTCP)
	client.conn = conn
	h.vm.push(handleValue(client.id))
	h.vm.execQuote(h.cb)
}

// ( handle quotation -- )
func primUVReadStart(vm *VM) {
	q := vm.popQuote()
	h := vm.popHandle(handleTCP)
	h.setCallback(q)
	if h.conn == nil {
		vm.reportf("uv:read-start: not a connected stream")
		return
	}
	h.arm()
	go h.readPump(h.conn)
}

// readPump posts one event per received chunk and a final empty-string
// event on clean EOF. A read error ends the read with no event.
func (h *handle) readPump(conn net.Conn) {
	for {
		buf := make([]byte, 64*1024)
		n, err := conn.Read(buf)
		if n > 0 {
			data := buf[:n]
			h.vm.loop.post(func() { h.received(data) })
		}
		switch err {
		case nil:
		case io.EOF:
			h.vm.loop.post(func() { h.receivedEOF() })
			return
		default:
			h.vm.loop.post(func() { h.disarm() })
			return
		}
	}
}

func (h *handle) received(data []byte) {
	if h.state != handleOpen || !h.armed {
		return
	}
	h.vm.push(handleValue(h.id))
	h.vm.push(stringValue(data))
	h.vm.execQuote(h.cb)
}

func (h *handle) receivedEOF() {
	if h.state != handleOpen || !h.armed {
		return
	}
	h.disarm()
	h.vm.push(handleValue(h.id))
	h.vm.push(stringValue([]byte{}))
	h.vm.execQuote(h.cb)
}

// ( handle ip port quotation -- )
func primUVTCPConnect(vm *VM) {
	q := vm.popQuote()
	port := vm.popInt()
	ip := vm.popString()
	h := vm.popHandle(handleTCP)
	h.setCallback(q)
	h.arm()
	go h.connectPump(net.JoinHostPort(string(ip), strconv.FormatInt(port, 10)))
}

// connectPump dials and posts the outcome; a failed connect is dropped
// silently.
func (h *handle) connectPump(addr string) {
	d := net.Dialer{}
	if h.local != nil {
		d.LocalAddr = h.local
	}
	conn, err := d.Dial("tcp4", addr)
	h.vm.loop.post(func() { h.connected(conn, err) })
}

func (h *handle) connected(conn net.Conn, err error) {
	if h.state != handleOpen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	h.disarm()
	if err != nil {
		return
	}
	h.conn = conn
	h.vm.push(handleValue(h.id))
	h.vm.execQuote(h.cb)
}

// ( handle string -- )
func primUVWrite(vm *VM) {
	s := vm.popString()
	h := vm.popHandle(handleTCP)
	if h.conn == nil {
		vm.reportf("uv:write: not a connected stream")
		return
	}
	vm.loop.active++
	go h.writePump(h.conn, s)
}

// writePump owns the payload bytes until the completion event runs.
func (h *handle) writePump(conn net.Conn, p []byte) {
	_, err := conn.Write(p)
	h.vm.loop.post(func() {
		h.vm.loop.active--
		if err != nil {
			h.vm.reportf("uv:write: %v", err)
		}
	})
}
