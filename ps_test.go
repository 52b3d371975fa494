// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intValue(i int64) Value {
	return Value{nil, objptr{}, i}
}

func TestStack(t *testing.T) {
	var stk Stack
	v1 := intValue(1)
	v2 := intValue(2)

	stk.Push(v1)
	stk.Push(v2)
	assert.Equal(t, 2, stk.Len(), "expected Len()=2 after pushing two elements")

	popped := stk.Pop()
	assert.Equal(t, v2, popped, "expected last pushed value to be popped first")

	popped = stk.Pop()
	assert.Equal(t, v1, popped, "expected second pop to return the first pushed value")

	empty := stk.Pop()
	assert.Equal(t, (Value{}), empty, "popping empty stack should return zero Value")
}

func TestStack_Reset(t *testing.T) {
	var stk Stack
	for i := int64(1); i <= 3; i++ {
		stk.Push(intValue(i))
	}
	stk.reset()
	assert.Equal(t, 0, stk.Len())
	assert.Equal(t, Value{}, stk.Pop())

	// The backing array is cleared so dropped operands can be collected.
	for _, v := range stk.stack[:3] {
		assert.Equal(t, Value{}, v)
	}

	stk.Push(intValue(7))
	assert.Equal(t, int64(7), stk.Pop().Int64(), "the stack is usable after a reset")
}

// opTrace records each operator with the integer operands on the stack.
type opTrace struct {
	op   string
	args []int64
}

func traceOps(t *testing.T, src string) []opTrace {
	t.Helper()
	var got []opTrace
	err := interpret(context.Background(), []byte(src), func(stk *Stack, op string) error {
		args := make([]int64, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop().Int64()
		}
		got = append(got, opTrace{op, args})
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestInterpret_Operands(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []opTrace
	}{
		{
			name: "operands reach the operator",
			src:  "1 2 op",
			want: []opTrace{{"op", []int64{1, 2}}},
		},
		{
			name: "dictionary definitions are looked up",
			src:  "1 dict begin /width 12 def width op end width op",
			want: []opTrace{{"op", []int64{12}}, {"width", []int64{}}, {"op", []int64{}}},
		},
		{
			name: "def without a dictionary drops its operands",
			src:  "/x 5 def 3 op",
			want: []opTrace{{"op", []int64{3}}},
		},
		{
			name: "pop",
			src:  "1 2 pop op",
			want: []opTrace{{"op", []int64{1}}},
		},
		{
			name: "inline image clears the operands",
			src:  "BI /W 1 /H 1 ID \x00 EI 4 op",
			want: []opTrace{{"BI", []int64{}}, {"op", []int64{4}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, traceOps(t, tt.src))
		})
	}
}

func TestInterpret_Stop(t *testing.T) {
	var ops []string
	err := interpret(context.Background(), []byte("a b c"), func(stk *Stack, op string) error {
		ops = append(ops, op)
		if op == "b" {
			return errStopInterpret
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ops)

	boom := errors.New("boom")
	err = interpret(context.Background(), []byte("a b"), func(stk *Stack, op string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestInterpret_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := interpret(ctx, bytes.Repeat([]byte("n "), 300), func(*Stack, string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuffer_seekForward(t *testing.T) {
	b := newBuffer(bytes.NewReader([]byte("hello world")), 0)
	b.seekForward(5)
	assert.True(t, b.offset >= 5)
	assert.True(t, b.pos >= 0)
}
