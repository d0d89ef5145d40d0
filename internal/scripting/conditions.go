package scripting

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrUnknownCondition is returned by Eval for a name that was never compiled.
var ErrUnknownCondition = errors.New("unknown condition")

// Facts is the subject table handed to a predicate. Supported value types are
// string, bool, int, int64, float64 and []string.
type Facts map[string]any

// Conditions holds named Lua predicates compiled into one sandboxed VM.
// Each predicate is an expression over the global-free table `subject`.
//
// Conditions is safe for concurrent use; evaluations are serialised.
type Conditions struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	logger *zap.Logger
	fns    map[string]*lua.LFunction
}

// NewConditions creates an empty predicate set.
//
// Precondition: logger must be non-nil; instLimit <= 0 uses DefaultInstructionLimit.
// Postcondition: Returns a Conditions ready for Compile.
func NewConditions(instLimit int, logger *zap.Logger) *Conditions {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	return &Conditions{
		L:      NewSandboxedState(),
		limit:  instLimit,
		logger: logger,
		fns:    make(map[string]*lua.LFunction),
	}
}

// Compile registers expr under name. Compiling a name twice replaces it.
//
// Precondition: name and expr must be non-empty.
// Postcondition: Eval(name, ...) runs expr, or a syntax error is returned.
func (c *Conditions) Compile(name, expr string) error {
	src := "return function(subject) return (" + expr + ") end"

	c.mu.Lock()
	defer c.mu.Unlock()

	chunk, err := c.L.LoadString(src)
	if err != nil {
		return fmt.Errorf("scripting: compiling %q: %w", name, err)
	}
	done := withBudget(c.L, c.limit)
	defer done()
	if err := c.L.CallByParam(lua.P{Fn: chunk, NRet: 1, Protect: true}); err != nil {
		return fmt.Errorf("scripting: compiling %q: %w", name, err)
	}
	fn, ok := c.L.Get(-1).(*lua.LFunction)
	c.L.Pop(1)
	if !ok {
		return fmt.Errorf("scripting: compiling %q: chunk did not yield a function", name)
	}
	c.fns[name] = fn
	return nil
}

// Has reports whether name was compiled.
func (c *Conditions) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.fns[name]
	return ok
}

// Eval runs the predicate name against facts. Lua truthiness decides the
// result. Runtime errors, including an exhausted instruction budget, are
// returned and the result is false.
func (c *Conditions) Eval(name string, facts Facts) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn, ok := c.fns[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCondition, name)
	}

	subject := c.L.NewTable()
	for k, v := range facts {
		subject.RawSetString(k, toLua(c.L, v))
	}

	done := withBudget(c.L, c.limit)
	defer done()
	if err := c.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, subject); err != nil {
		c.logger.Warn("scripting: Lua runtime error",
			zap.String("condition", name),
			zap.Error(err),
		)
		return false, fmt.Errorf("scripting: evaluating %q: %w", name, err)
	}
	ret := c.L.Get(-1)
	c.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases the VM.
func (c *Conditions) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.L.Close()
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []string:
		t := L.NewTable()
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	default:
		return lua.LNil
	}
}
