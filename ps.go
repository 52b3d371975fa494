// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sassoftware/pdf-xtract/logger"
)

// A Stack represents a stack of values.
type Stack struct {
	stack []Value
}

func (stk *Stack) Len() int {
	return len(stk.stack)
}

func (stk *Stack) Push(v Value) {
	stk.stack = append(stk.stack, v)
}

func (stk *Stack) Pop() Value {
	n := len(stk.stack)
	if n == 0 {
		return Value{}
	}
	v := stk.stack[n-1]
	stk.stack[n-1] = Value{}
	stk.stack = stk.stack[:n-1]
	return v
}

// reset drops every operand.
func (stk *Stack) reset() {
	for i := range stk.stack {
		stk.stack[i] = Value{}
	}
	stk.stack = stk.stack[:0]
}

func newDict() Value {
	return Value{nil, objptr{}, make(dict)}
}

// errStopInterpret ends an interpretation early without reporting an error.
var errStopInterpret = errors.New("stop interpretation")

// Interpret interprets the content in a stream (or an array of streams) as
// a basic PostScript program, pushing values onto a stack and then calling
// the do function to execute operators. The do function may push or pop
// values from the stack as needed to implement op.
//
// Interpret handles the operators "dict", "currentdict", "begin", "end",
// "def", and "pop" itself. Inline image data is skipped.
func Interpret(strm Value, do func(stk *Stack, op string)) error {
	data, err := contentData(strm)
	if err != nil {
		return err
	}
	return interpret(context.Background(), data, func(stk *Stack, op string) error {
		do(stk, op)
		return nil
	})
}

// contentData returns the decoded bytes of a content stream. An array of
// streams is concatenated with a newline between parts; a part that fails
// to decode is skipped.
func contentData(strm Value) ([]byte, error) {
	switch strm.Kind() {
	case Stream:
		return strm.Data()
	case Array:
		var buf bytes.Buffer
		for i := 0; i < strm.Len(); i++ {
			part := strm.Index(i)
			data, err := part.Data()
			if err != nil {
				logger.Error(fmt.Sprintf("content stream %d of %d skipped: %v", i+1, strm.Len(), err))
				continue
			}
			buf.Write(data)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	case Null:
		return nil, nil
	}
	return nil, &TypeMismatch{Want: Stream, Got: strm.Kind()}
}

// interpret runs the operator loop over data. Lexical errors resynchronise
// at the next token and clear the operand stack. A non-nil error from do
// stops the loop; errStopInterpret stops it silently.
func interpret(ctx context.Context, data []byte, do func(stk *Stack, op string) error) error {
	b := newBuffer(bytes.NewReader(data), 0)
	b.allowEOF = true
	b.allowObjptr = false
	b.allowStream = false
	var stk Stack
	var dicts []dict
	nops := 0

Reading:
	for {
		tok, err := nextToken(b)
		if err != nil {
			logger.Debug(fmt.Sprintf("content: resynchronising after %v", err))
			stk.reset()
			if b.eof {
				break
			}
			continue
		}
		if tok == io.EOF {
			break
		}
		if kw, ok := tok.(keyword); ok {
			switch kw {
			case "null", "[", "<<":
				b.unreadToken(tok)
				obj, err := nextObject(b)
				if err != nil {
					logger.Debug(fmt.Sprintf("content: dropping operand: %v", err))
					stk.reset()
					continue
				}
				stk.Push(Value{nil, objptr{}, obj})
				continue
			case "]", ">>", "{", "}":
				continue
			case "ID":
				b.skipInlineImage()
				stk.reset()
				continue
			case "dict":
				stk.Pop()
				stk.Push(newDict())
				continue
			case "currentdict":
				if len(dicts) == 0 {
					stk.Push(newDict())
					continue
				}
				stk.Push(Value{nil, objptr{}, dicts[len(dicts)-1]})
				continue
			case "begin":
				d := stk.Pop()
				if d.Kind() != Dict {
					d = newDict()
				}
				dicts = append(dicts, d.data.(dict))
				continue
			case "end":
				if len(dicts) > 0 {
					dicts = dicts[:len(dicts)-1]
				}
				continue
			case "def":
				if len(dicts) == 0 {
					stk.Pop()
					stk.Pop()
					continue
				}
				val := stk.Pop()
				key, ok := stk.Pop().data.(name)
				if !ok {
					continue
				}
				dicts[len(dicts)-1][key] = val.data
				continue
			case "pop":
				stk.Pop()
				continue
			}
			for i := len(dicts) - 1; i >= 0; i-- {
				if v, ok := dicts[i][name(kw)]; ok {
					stk.Push(Value{nil, objptr{}, v})
					continue Reading
				}
			}
			nops++
			if nops%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := do(&stk, string(kw)); err != nil {
				if errors.Is(err, errStopInterpret) {
					return nil
				}
				return err
			}
			continue
		}
		b.unreadToken(tok)
		obj, err := nextObject(b)
		if err != nil {
			stk.reset()
			continue
		}
		stk.Push(Value{nil, objptr{}, obj})
	}
	return ctx.Err()
}

// nextToken reads one token, turning lexer panics into errors.
func nextToken(b *buffer) (tok token, err error) {
	defer catch(&err)
	return b.readToken(), nil
}

// nextObject reads one object, turning parser panics into errors.
func nextObject(b *buffer) (obj object, err error) {
	defer catch(&err)
	return b.readObject(), nil
}

// catch recovers the typed parse errors raised inside the lexer and object
// parser. Any other panic is re-raised.
func catch(err *error) {
	x := recover()
	if x == nil {
		return
	}
	switch e := x.(type) {
	case *LexError:
		*err = e
	case *MalformedObject:
		*err = e
	case *UnsupportedFilter:
		*err = e
	case *CorruptStream:
		*err = e
	case *TypeMismatch:
		*err = e
	default:
		panic(x)
	}
}
