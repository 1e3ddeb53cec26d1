// internal/archive/archiver.go copies live room snapshots from the fast store
// into long-term storage in batches.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Source lists and reads rooms, e.g. the Redis store.
type Source interface {
	RoomIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, roomID string) (*protocol.RoomSyncState, bool, error)
}

// Sink writes many rooms at once, e.g. the Postgres store.
type Sink interface {
	SaveBatch(ctx context.Context, states map[string]*protocol.RoomSyncState) error
}

type Archiver struct {
	src       Source
	sink      Sink
	interval  time.Duration
	batchSize int
	logger    *logrus.Logger

	// Encoded snapshot per room as of the last successful flush; unchanged
	// rooms are skipped.
	archived map[string]string
}

func New(src Source, sink Sink, interval time.Duration, batchSize int, logger *logrus.Logger) *Archiver {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Archiver{
		src:       src,
		sink:      sink,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		archived:  make(map[string]string),
	}
}

// Run archives every interval until ctx is cancelled, then does one last pass.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Infof("Archiver started, interval %s", a.interval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := a.Sweep(flushCtx); err != nil {
				return err
			}
			a.logger.Info("Archiver stopped")
			return nil
		case <-ticker.C:
			if _, err := a.Sweep(ctx); err != nil {
				a.logger.Errorf("Archive sweep failed: %v", err)
			}
		}
	}
}

// Sweep copies every changed room to the sink and returns how many it wrote.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	ids, err := a.src.RoomIDs(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	batch := make(map[string]*protocol.RoomSyncState, a.batchSize)
	encoded := make(map[string]string, a.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := a.sink.SaveBatch(ctx, batch); err != nil {
			return fmt.Errorf("flush %d rooms: %w", len(batch), err)
		}
		for id, enc := range encoded {
			a.archived[id] = enc
		}
		written += len(batch)
		batch = make(map[string]*protocol.RoomSyncState, a.batchSize)
		encoded = make(map[string]string, a.batchSize)
		return nil
	}

	for _, id := range ids {
		state, found, err := a.src.Load(ctx, id)
		if err != nil {
			a.logger.Warnf("Skipping room %s: %v", id, err)
			continue
		}
		if !found {
			continue
		}
		data, err := json.Marshal(state)
		if err != nil {
			a.logger.Warnf("Skipping room %s: %v", id, err)
			continue
		}
		if a.archived[id] == string(data) {
			continue
		}
		batch[id] = state
		encoded[id] = string(data)
		if len(batch) >= a.batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	if written > 0 {
		a.logger.Infof("Archived %d rooms", written)
	}
	return written, nil
}
