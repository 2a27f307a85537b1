// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type rows [][]any

func (r rows) Len() int          { return len(r) }
func (r rows) Row(i int) []any   { return r[i] }

func TestFuncExprEval(t *testing.T) {
	e := FuncExpr{Fn: func(row []any) (bool, bool) {
		qty, ok := row[0].(int64)
		if !ok {
			return false, true
		}
		return qty > 0, false
	}}

	value, isNull := e.Eval([]any{int64(5)})
	assert.True(t, value)
	assert.False(t, isNull)

	value, isNull = e.Eval([]any{nil})
	assert.False(t, value)
	assert.True(t, isNull)
}

func TestFuncExecutorExecuteExpression(t *testing.T) {
	e := FuncExpr{Fn: func(row []any) (bool, bool) {
		n, ok := row[0].(int64)
		if !ok {
			return false, true
		}
		return n > 0, false
	}}

	data := rows{{int64(1)}, {int64(-1)}, {nil}}
	result := make([]int8, data.Len())

	err := FuncExecutor{}.ExecuteExpression(e, data, result)
	assert.NoError(t, err)
	assert.Equal(t, []int8{1, 0, 0}, result)
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ExecutionError{Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

var _ ExpressionExecutor = FuncExecutor{}
var _ Expression = FuncExpr{}
