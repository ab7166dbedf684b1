package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RickCarlino/solar-forth/internal/flushio"
	"github.com/RickCarlino/solar-forth/internal/panicerr"
)

// VM is the whole interpreter state: the operand stack, the dictionary,
// the quotation store, the handle registry, and the event loop. A VM is
// owned by one goroutine at a time; the loop serializes event callbacks
// onto whichever goroutine is evaluating.
type VM struct {
	logging

	stack   []value
	dict    dict
	quotes  quotes
	handles handles
	loop    loop
	running bool

	out     flushio.WriteFlusher
	errOut  io.Writer
	ctx     context.Context
	closers []io.Closer
}

// New builds a VM with the core and uv: vocabularies installed.
func New(opts ...VMOption) *VM {
	vm := &VM{
		errOut:  os.Stderr,
		out:     flushio.New(io.Discard),
		running: true,
	}
	vm.loop.events = make(chan func(), 16)
	vm.addCoreWords()
	vm.addLoopWords()
	VMOptions(opts...).apply(vm)
	return vm
}

// Eval scans src and executes the resulting token vector, including any
// event-loop turns the script takes. Interpreter faults surface as a
// single error return; control never re-enters user code after one.
func (vm *VM) Eval(ctx context.Context, src []byte) error {
	vm.ctx = ctx
	defer func() { vm.ctx = nil }()
	err := panicerr.Recover("interp", func() error {
		toks := scanTokens(src)
		vm.logf(">", "scan %d tokens", len(toks))
		vm.execTokens(toks)
		return vm.out.Flush()
	})
	var he haltError
	if errors.As(err, &he) {
		err = he.error
	}
	return err
}

// Running reports whether the run flag is still set, i.e. whether bye has
// not been executed yet.
func (vm *VM) Running() bool { return vm.running }

func (vm *VM) Close() (err error) {
	for i := len(vm.closers) - 1; i >= 0; i-- {
		if cerr := vm.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// halt aborts the current evaluation. It is the single fatal path: every
// fault becomes a haltError panic recovered at the Eval boundary.
func (vm *VM) halt(err error) {
	func() {
		defer func() { recover() }()
		if vm.out != nil {
			vm.out.Flush()
		}
	}()
	vm.logf("#", "halt error: %v", err)
	panic(haltError{err})
}

func (vm *VM) haltif(err error) {
	if err != nil {
		vm.halt(err)
	}
}

type haltError struct{ error }

func (err haltError) Error() string {
	if err.error != nil {
		return fmt.Sprintf("halted: %v", err.error)
	}
	return "halted"
}
func (err haltError) Unwrap() error { return err.error }

// reportf emits a non-fatal single-line diagnostic, the channel for
// event-loop errors that execution survives.
func (vm *VM) reportf(mess string, args ...interface{}) {
	fmt.Fprintf(vm.errOut, mess+"\n", args...)
}

type logging struct {
	logfn     func(mess string, args ...interface{})
	markWidth int
}

func (log *logging) logf(mark, mess string, args ...interface{}) {
	if log.logfn == nil {
		return
	}
	if n := log.markWidth - len(mark); n > 0 {
		for _, r := range mark {
			mark = strings.Repeat(string(r), n) + mark
			break
		}
	} else if n < 0 {
		log.markWidth = len(mark)
	}
	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	log.logfn("%v %v", mark, mess)
}

type VMOption interface{ apply(vm *VM) }

func VMOptions(opts ...VMOption) VMOption {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(vm *VM) {}

type options []VMOption

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

// WithOutput directs print, cr, and words at w.
func WithOutput(w io.Writer) VMOption { return outputOption{w} }

// WithErrorOutput directs non-fatal diagnostics at w.
func WithErrorOutput(w io.Writer) VMOption { return errOutputOption{w} }

// WithLogf enables trace logging through the given printf-style function.
func WithLogf(logfn func(mess string, args ...interface{})) VMOption { return logfnOption(logfn) }

type outputOption struct{ io.Writer }
type errOutputOption struct{ io.Writer }
type logfnOption func(mess string, args ...interface{})

func (o outputOption) apply(vm *VM) {
	if vm.out != nil {
		vm.out.Flush()
	}
	vm.out = flushio.New(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

func (o errOutputOption) apply(vm *VM) {
	vm.errOut = o.Writer
}

func (logfn logfnOption) apply(vm *VM) {
	vm.logfn = logfn
}
