// Copyright 2025 Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memorystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateTailRespectsItemCap(t *testing.T) {
	items := []Gotcha{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	out := truncateTail(items, 2, 1000, gotchaCharLen)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].Text)
	assert.Equal(t, "d", out[1].Text)
}

func TestTruncateTailRespectsCharCap(t *testing.T) {
	items := []Gotcha{
		{Text: "1234567890"},
		{Text: "1234567890"},
		{Text: "1234567890"},
	}
	out := truncateTail(items, 10, 15, gotchaCharLen)
	assert.Len(t, out, 1)
}

func TestLoadMemoryForContextSerializedSizeWithinBudget(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.RecordGotcha(longText(i)))
	}

	ctx, err := s.LoadMemoryForContext()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ctx.Gotchas), defaultBudgets.gotchaItems)

	total := 0
	for _, g := range ctx.Gotchas {
		total += gotchaCharLen(g)
	}
	assert.LessOrEqual(t, total, defaultBudgets.gotchaChars)
}

func longText(n int) string {
	b := make([]byte, 50)
	for i := range b {
		b[i] = byte('a' + (n+i)%26)
	}
	return string(b)
}
