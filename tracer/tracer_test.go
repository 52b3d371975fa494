// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package tracer

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlush(t *testing.T) {
	Reset()
	Log("one")
	Log("two")

	var buf bytes.Buffer
	require.NoError(t, Flush(&buf))
	assert.Equal(t, "one\ntwo\n", buf.String())
	assert.Empty(t, Messages())
}

func TestLog_Bounded(t *testing.T) {
	Reset()
	for i := 0; i < MaxMessages+10; i++ {
		Log(fmt.Sprint(i))
	}
	msgs := Messages()
	assert.Len(t, msgs, MaxMessages)
	assert.Equal(t, "10", msgs[0])
	assert.Equal(t, fmt.Sprint(MaxMessages+9), msgs[MaxMessages-1])
	for i, msg := range msgs {
		require.Equal(t, fmt.Sprint(i+10), msg, "messages stay in order after wrapping")
	}
	Reset()
}

func TestFlush_AfterWrap(t *testing.T) {
	Reset()
	for i := 0; i < MaxMessages+2; i++ {
		Log(fmt.Sprint(i))
	}
	var buf bytes.Buffer
	require.NoError(t, Flush(&buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, MaxMessages)
	assert.Equal(t, "2", lines[0])
	assert.Equal(t, fmt.Sprint(MaxMessages+1), lines[len(lines)-1])

	Log("fresh")
	assert.Equal(t, []string{"fresh"}, Messages(), "the ring restarts after a flush")
}
