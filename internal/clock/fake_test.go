package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_NowAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	require.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	require.Equal(t, start.Add(90*time.Second), c.Now())
}

func TestFake_TickerFiresOnDeadline(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	c.Advance(4 * time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFake_TickerDropsMissedTicks(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Minute)

	c.Advance(10 * time.Minute)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("expected a single buffered tick")
	default:
	}

	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFake_BlockUntilTickers(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	done := make(chan struct{})
	go func() {
		c.BlockUntilTickers(1)
		close(done)
	}()
	c.NewTicker(time.Second)
	<-done
}
