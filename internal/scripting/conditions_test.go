package scripting_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/ascend/internal/scripting"
)

func TestConditions_EvalFacts(t *testing.T) {
	c := scripting.NewConditions(0, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.Compile("unemployed_10", `subject.role == "백수" and subject.level >= 10`))

	ok, err := c.Eval("unemployed_10", scripting.Facts{"role": "백수", "level": 10})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Eval("unemployed_10", scripting.Facts{"role": "의사", "level": 12})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditions_StringSliceFact(t *testing.T) {
	c := scripting.NewConditions(0, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.Compile("many", `#subject.endings >= 2`))
	ok, err := c.Eval("many", scripting.Facts{"endings": []string{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditions_CompileSyntaxError(t *testing.T) {
	c := scripting.NewConditions(0, zaptest.NewLogger(t))
	defer c.Close()
	assert.Error(t, c.Compile("bad", `subject.level >=`))
	assert.False(t, c.Has("bad"))
}

func TestConditions_UnknownName(t *testing.T) {
	c := scripting.NewConditions(0, zaptest.NewLogger(t))
	defer c.Close()
	_, err := c.Eval("missing", nil)
	assert.ErrorIs(t, err, scripting.ErrUnknownCondition)
}

func TestConditions_RuntimeErrorLogsWarn(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c := scripting.NewConditions(0, zap.New(core))
	defer c.Close()

	require.NoError(t, c.Compile("nil_index", `subject.missing.field == 1`))
	ok, err := c.Eval("nil_index", scripting.Facts{})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
}

func TestConditions_BudgetStopsRunaway(t *testing.T) {
	c := scripting.NewConditions(100, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.Compile("spin", `(function() while true do end end)()`))
	_, err := c.Eval("spin", nil)
	assert.Error(t, err)

	require.NoError(t, c.Compile("cheap", `true`))
	ok, err := c.Eval("cheap", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditions_ConcurrentEval(t *testing.T) {
	c := scripting.NewConditions(0, zaptest.NewLogger(t))
	defer c.Close()
	require.NoError(t, c.Compile("even", `subject.n % 2 == 0`))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := c.Eval("even", scripting.Facts{"n": n})
			assert.NoError(t, err)
			assert.Equal(t, n%2 == 0, ok)
		}(i)
	}
	wg.Wait()
}
