package recorder

import (
	"fmt"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/eventbus"
	"tradeEngine/internal/persist"
	"tradeEngine/internal/ports"
)

// Recorder journals market data into the store through the persistence
// worker. Ticks are inserted (not upserted) under a timestamp key, so a
// replayed tick with the same timestamp is dropped by the worker's
// duplicate-key policy instead of overwriting history.
type Recorder struct {
	logger ports.Logger
	worker *persist.Worker

	instruments map[string]bool
}

// Config holds construction parameters for the recorder.
type Config struct {
	Logger ports.Logger
	Worker *persist.Worker
	// Instruments limits journaling to the listed instruments. Empty means
	// record everything.
	Instruments []string
}

// New creates a recorder.
func New(cfg Config) (*Recorder, error) {
	if cfg.Logger == nil || cfg.Worker == nil {
		return nil, fmt.Errorf("missing required dependencies for recorder")
	}
	set := make(map[string]bool, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		set[inst] = true
	}
	return &Recorder{logger: cfg.Logger, worker: cfg.Worker, instruments: set}, nil
}

// Register subscribes the recorder on the bus.
func (r *Recorder) Register(bus *eventbus.Bus) {
	bus.Subscribe(domain.EventTick, eventbus.Handler{ID: "recorder.tick", Fn: r.handleTick})
}

func (r *Recorder) handleTick(event domain.Event) {
	tick, ok := event.Payload.(*domain.Tick)
	if !ok {
		return
	}
	if len(r.instruments) > 0 && !r.instruments[tick.Instrument] {
		return
	}
	key := tick.Date + " " + tick.Time
	if key == " " {
		key = tick.Timestamp.Format("20060102 15:04:05.000")
	}
	r.worker.Enqueue(persist.Write{
		Collection: "ticks." + tick.Instrument,
		Key:        key,
		Doc:        tick,
	})
}
