package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds a single entry into the state.
const DefaultExecutionTimeout = 5 * time.Second

// stateKey marks contexts handed to Go functions running inside a State.
type stateKey struct{}

// State is a sandboxed Lua runtime. It is safe for concurrent use; calls are
// serialized.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	timeout time.Duration
	printer func(msg string)
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds each DoFile, DoString and call. Zero disables
// the bound.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.timeout = d
	}
}

// WithPrinter routes the Lua print function to fn.
func WithPrinter(fn func(msg string)) StateOption {
	return func(s *State) {
		s.printer = fn
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	s := &State{timeout: DefaultExecutionTimeout}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := openSafeLibraries(L); err != nil {
		L.Close()
		return nil, err
	}
	installSandbox(L, s.printer)

	s.L = L
	return s, nil
}

func openSafeLibraries(L *lua.LState) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open lua library %q: %w", lib.name, err)
		}
	}
	return nil
}

// InState reports whether ctx belongs to a call currently running in s.
func (s *State) InState(ctx context.Context) bool {
	owner, _ := ctx.Value(stateKey{}).(*State)
	return owner == s
}

// enter runs fn with the state locked and ctx installed, unless ctx shows
// the caller is already running inside s.
func (s *State) enter(ctx context.Context, fn func() error) (err error) {
	if s.InState(ctx) {
		return s.protect(fn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.L.SetContext(context.WithValue(ctx, stateKey{}, s))
	defer s.L.RemoveContext()

	return s.protect(fn)
}

func (s *State) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// DoFile executes a Lua file.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.enter(ctx, func() error {
		return s.L.DoFile(path)
	})
}

// DoString executes a Lua chunk.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.enter(ctx, func() error {
		return s.L.DoString(code)
	})
}

// HasFunction reports whether the global name is a function.
func (s *State) HasFunction(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// CallGlobal calls the global function name.
func (s *State) CallGlobal(ctx context.Context, name string, args ...lua.LValue) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.enter(ctx, func() error {
		fn, ok := s.L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFunction, name)
		}
		var err error
		results, err = s.call(fn, args)
		return err
	})
	return results, err
}

// CallFunction calls fn, which must belong to this state.
func (s *State) CallFunction(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	if fn == nil {
		return nil, ErrNotFunction
	}
	var results []lua.LValue
	err := s.enter(ctx, func() error {
		var err error
		results, err = s.call(fn, args)
		return err
	})
	return results, err
}

// Invoke calls fn while holding the state. args builds the arguments and
// read inspects the results; either may be nil. Tables created by args or
// returned by fn must not escape read.
func (s *State) Invoke(ctx context.Context, fn *lua.LFunction, args func(L *lua.LState) []lua.LValue, read func(L *lua.LState, results []lua.LValue) error) error {
	if fn == nil {
		return ErrNotFunction
	}
	return s.enter(ctx, func() error {
		var in []lua.LValue
		if args != nil {
			in = args(s.L)
		}
		results, err := s.call(fn, in)
		if err != nil {
			return err
		}
		if read != nil {
			return read(s.L, results)
		}
		return nil
	})
}

func (s *State) call(fn *lua.LFunction, args []lua.LValue) ([]lua.LValue, error) {
	top := s.L.GetTop()

	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}
	if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
		s.L.SetTop(top)
		return nil, err
	}

	n := s.L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// Do runs fn with exclusive access to the underlying LState.
func (s *State) Do(ctx context.Context, fn func(L *lua.LState) error) error {
	return s.enter(ctx, func() error {
		return fn(s.L)
	})
}

// PreloadModule makes name available to require.
func (s *State) PreloadModule(name string, loader lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.PreloadModule(name, loader)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
