package memlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertEventCount verifies that exactly n events are stored.
func (l *Log) AssertEventCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(l.Events())
	require.Equal(tb, expected, actual, "expected %d events in log %q, got %d", expected, l.id, actual)
}

// AssertPayloads verifies the stored payloads in log order.
func (l *Log) AssertPayloads(tb testing.TB, expected ...any) {
	tb.Helper()

	require.Equal(tb, expected, l.Payloads())
}

// AssertProgress verifies the committed progress for a writer.
func (l *Log) AssertProgress(tb testing.TB, writerID string, expected int64) {
	tb.Helper()

	actual := l.Progress(writerID)
	require.Equal(tb, expected, actual, "expected progress %d for writer %q, got %d", expected, writerID, actual)
}

// AssertWriteCount verifies how many Write calls were submitted, including
// calls whose units were deduplicated.
func (l *Log) AssertWriteCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(l.Writes())
	require.Equal(tb, expected, actual, "expected %d write calls to log %q, got %d", expected, l.id, actual)
}

// AssertWriteTags verifies the progress tags of all submitted writes in
// order.
func (l *Log) AssertWriteTags(tb testing.TB, expected ...int64) {
	tb.Helper()

	writes := l.Writes()
	actual := make([]int64, len(writes))
	for i, w := range writes {
		actual[i] = w.Progress
	}
	require.Equal(tb, expected, actual)
}
