package backtest

import (
	"context"
	"io"

	"github.com/eddiefleurent/condor_backtest/internal/models"
)

// Source yields snapshots in arrival order and returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) (*models.MarketSnapshot, error)
}

// HistoricalSource replays an ordered slice.
type HistoricalSource struct {
	snapshots []models.MarketSnapshot
	idx       int
}

// NewHistoricalSource wraps snapshots without copying them.
func NewHistoricalSource(snapshots []models.MarketSnapshot) *HistoricalSource {
	return &HistoricalSource{snapshots: snapshots}
}

// Next implements Source.
func (h *HistoricalSource) Next(_ context.Context) (*models.MarketSnapshot, error) {
	if h.idx >= len(h.snapshots) {
		return nil, io.EOF
	}
	s := &h.snapshots[h.idx]
	h.idx++
	return s, nil
}

// Remaining returns how many snapshots have not been read.
func (h *HistoricalSource) Remaining() int {
	return len(h.snapshots) - h.idx
}

// ChannelSource reads from an asynchronous feed. Closing the channel ends
// the stream. Waiting on the channel is the only blocking point of a run.
type ChannelSource struct {
	ch <-chan *models.MarketSnapshot
}

// NewChannelSource wraps a snapshot channel.
func NewChannelSource(ch <-chan *models.MarketSnapshot) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// Next implements Source. Nil snapshots on the channel are ignored.
func (c *ChannelSource) Next(ctx context.Context) (*models.MarketSnapshot, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case s, ok := <-c.ch:
			if !ok {
				return nil, io.EOF
			}
			if s != nil {
				return s, nil
			}
		}
	}
}
