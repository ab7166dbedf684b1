package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_uv_words(t *testing.T) {
	vmTestCases{
		vmTest("run with no active handles returns").
			withSource("uv:run").
			expectStack(),

		vmTest("timer fires once").
			withSource(`uv:timer 10 0 [ "tick" print cr drop bye ] uv:timer-start uv:run`).
			expectOutput("tick\n").
			expectStack(),

		vmTest("repeating timer re-arms until bye").
			withSource(`uv:timer 5 5 [ "t" print drop bye ] uv:timer-start uv:run`).
			expectOutput("t").
			expectStack(),

		vmTest("stopped timer does not hold the loop").
			withSource("uv:timer dup 10 0 [ drop ] uv:timer-start uv:timer-stop uv:run").
			expectOutput("").
			expectStack(),

		vmTest("close releases the handle").
			withSource("uv:timer uv:close uv:run").
			expectWith(func(t *testing.T, vm *VM) {
				assert.Empty(t, vm.handles.live)
			}),

		vmTest("close of a closing handle is fatal").
			withSource("uv:timer dup uv:close uv:close").
			expectError("use of closed handle"),

		vmTest("timer primitive on a tcp handle is fatal").
			withSource("uv:tcp 10 0 [ drop ] uv:timer-start").
			expectError("handle type mismatch"),

		vmTest("tcp primitive on a timer handle is fatal").
			withSource(`uv:timer "127.0.0.1" 1 uv:tcp-bind`).
			expectError("handle type mismatch"),

		vmTest("close pops any handle kind").
			withSource("uv:tcp uv:close uv:run").
			expectWith(func(t *testing.T, vm *VM) {
				assert.Empty(t, vm.handles.live)
			}),

		vmTest("bind error is reported not fatal").
			withSource(`uv:tcp "not an ip" 1 uv:tcp-bind 1`).
			expectStack(intValue(1)).
			expectWith(func(t *testing.T, vm *VM) {
				assert.Contains(t, vm.errOut.(*strings.Builder).String(), "uv:tcp-bind:")
			}),

		vmTest("write on an unconnected handle is reported not fatal").
			withSource(`uv:tcp "x" uv:write 1`).
			expectStack(intValue(1)).
			expectWith(func(t *testing.T, vm *VM) {
				assert.Contains(t, vm.errOut.(*strings.Builder).String(), "uv:write:")
			}),
	}.run(t)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// The S3 shape: a listener whose connection callback starts reads, and a
// read callback that echoes every chunk back to the sender.
func Test_tcp_echoServer(t *testing.T) {
	port := freePort(t)
	src := fmt.Sprintf(`
: on-read [ dup print uv:write ] ;
: on-conn [ dup [ on-read ] uv:read-start ] ;
uv:tcp dup "127.0.0.1" %d uv:tcp-bind 16 [ on-conn ] uv:listen uv:run
`, port)

	var out, errOut strings.Builder
	vm := New(WithOutput(&out), WithErrorOutput(&errOut))
	defer vm.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- vm.Eval(ctx, []byte(src)) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp4", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond, "server never came up")
	defer conn.Close()

	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "hello", out.String())
}

func Test_tcp_connectWrites(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- err.Error()
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		got <- string(buf[:n])
	}()

	src := fmt.Sprintf(`uv:tcp "127.0.0.1" %d [ "hi" uv:write ] uv:tcp-connect uv:run`, port)
	vmTest("connect then write").
		withSource(src).
		expectStack().
		run(t)

	select {
	case s := <-got:
		assert.Equal(t, "hi", s)
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no data")
	}
}

func Test_tcp_readEOF(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close() // immediate clean EOF for the client
	}()

	// the EOF event delivers (handle, "") exactly once
	src := fmt.Sprintf(`uv:tcp "127.0.0.1" %d [ [ print drop bye ] uv:read-start ] uv:tcp-connect uv:run`, port)
	vmTest("read to EOF").
		withSource(src).
		expectOutput("").
		expectStack().
		run(t)
}

func Test_tcp_connectFailureIsSilent(t *testing.T) {
	port := freePort(t) // nothing is listening there
	src := fmt.Sprintf(`uv:tcp "127.0.0.1" %d [ drop bye ] uv:tcp-connect uv:run`, port)
	vmTest("failed connect drops the attempt").
		withSource(src).
		expectOutput("").
		expectStack().
		run(t)
}
