package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v outside [%v, %v]", got, before, after)
}

func TestClockAfter(t *testing.T) {
	t.Parallel()

	clk := New()
	select {
	case <-clk.After(10 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("After did not fire")
	}
	select {
	case <-clk.After(-time.Second):
	case <-time.After(time.Second):
		t.Fatal("After with negative duration did not fire immediately")
	}
}
