package protocol

import (
	"context"
	"io"
)

// Feeder reads batches of records from a source. The EoF convention
// follows io.Reader: either `recs, EoF` or `recs, nil` followed by
// `nil, EoF`.
type Feeder interface {
	Feed(ctx context.Context) (recs Records, err error)
}

type Drainer interface {
	Drain(ctx context.Context, recs Records) error
}

type FeedCloser interface {
	Feeder
	io.Closer
}

type DrainCloser interface {
	Drainer
	io.Closer
}

type FeedDrainCloser interface {
	Feeder
	Drainer
	io.Closer
}

// Relay moves one batch from feeder to drainer.
func Relay(ctx context.Context, feeder Feeder, drainer Drainer) error {
	recs, err := feeder.Feed(ctx)
	if err != nil {
		if len(recs) > 0 {
			_ = drainer.Drain(ctx, recs)
		}
		return err
	}
	return drainer.Drain(ctx, recs)
}

// Pump relays until either side errors or the context ends.
func Pump(ctx context.Context, feeder Feeder, drainer Drainer) (err error) {
	for err == nil && ctx.Err() == nil {
		err = Relay(ctx, feeder, drainer)
	}
	return
}
