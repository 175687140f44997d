package profile

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_RecordsDurationAndPassesError(t *testing.T) {
	p := New()
	wantErr := stderrors.New("dial failed")

	err := p.Track("connect", func() error {
		time.Sleep(time.Millisecond)
		return wantErr
	})

	assert.Equal(t, wantErr, err)
	assert.Greater(t, p.Total("connect"), time.Duration(0))
}

func TestAdd_AccumulatesPerLabel(t *testing.T) {
	p := New()
	p.Add("exec", 10*time.Millisecond)
	p.Add("exec", 5*time.Millisecond)
	p.Add("connect", 2*time.Millisecond)

	assert.Equal(t, 15*time.Millisecond, p.Total("exec"))
	assert.Equal(t, []string{"exec", "connect"}, p.Labels())
}

func TestReport_EmptyWhenNothingRecorded(t *testing.T) {
	assert.Empty(t, New().Report())
}

func TestReport_ListsLabelsInFirstSeenOrder(t *testing.T) {
	p := New()
	p.Add("connect", 3*time.Millisecond)
	p.Add("exec", 7*time.Millisecond)

	report := p.Report()

	require.Contains(t, report, "connect")
	require.Contains(t, report, "exec")
	assert.Less(t, strings.Index(report, "connect"), strings.Index(report, "exec"))
}

func TestSlowest(t *testing.T) {
	p := New()
	p.Add("connect", 3*time.Millisecond)
	p.Add("exec", 7*time.Millisecond)

	label, d := p.Slowest()

	assert.Equal(t, "exec", label)
	assert.Equal(t, 7*time.Millisecond, d)
}
