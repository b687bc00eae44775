package macro

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogAppendKeepsTimesNonDecreasing(t *testing.T) {
	l := NewLog()
	l.Append(MouseMove{Time: 0.5, X: 1, Y: 1})
	stored := l.Append(KeyPress{Time: 0.4, Key: CharKey('a')})

	assert.Equal(t, 0.5, stored.Offset(), "late-appended event is moved up")
	assert.Equal(t, KeyPress{Time: 0.5, Key: CharKey('a')}, l.Events()[1])
}

func TestLogNewLogNormalises(t *testing.T) {
	l := NewLog(
		MouseMove{Time: -1, X: 0, Y: 0},
		MouseMove{Time: 2, X: 0, Y: 0},
		MouseMove{Time: 1, X: 0, Y: 0},
	)
	events := l.Events()
	assert.Equal(t, 0.0, events[0].Offset())
	assert.Equal(t, 2.0, events[1].Offset())
	assert.Equal(t, 2.0, events[2].Offset())
}

func TestLogEventsIsCopy(t *testing.T) {
	l := NewLog(MouseMove{Time: 0, X: 1, Y: 1})
	events := l.Events()
	events[0] = MouseMove{Time: 0, X: 9, Y: 9}

	assert.Equal(t, MouseMove{Time: 0, X: 1, Y: 1}, l.Events()[0])
}

func TestLogDurationAndCounts(t *testing.T) {
	l := NewLog()
	assert.Equal(t, 0.0, l.Duration())

	l.Replace([]Event{
		MouseMove{Time: 1, X: 0, Y: 0},
		KeyPress{Time: 1.5, Key: CharKey('a')},
		KeyRelease{Time: 3, Key: CharKey('a')},
	})
	assert.Equal(t, 3, l.Len())
	assert.InDelta(t, 2.0, l.Duration(), 1e-9)

	counts := l.Counts()
	assert.Equal(t, 1, counts[KindMouseMove])
	assert.Equal(t, 1, counts[KindKeyPress])
	assert.Equal(t, 1, counts[KindKeyRelease])
	assert.Equal(t, 0, counts[KindMouseClick])

	l.Reset()
	assert.Equal(t, 0, l.Len())
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				l.Append(MouseMove{Time: float64(j) / 100, X: int32(i), Y: int32(j)})
			}
		}(i)
	}
	wg.Wait()

	events := l.Events()
	assert.Len(t, events, 1000)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Offset(), events[i-1].Offset())
	}
}

func TestKindString(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "unknown", KindUnknown.String())
}
