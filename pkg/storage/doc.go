/*
Package storage provides BoltDB-backed persistence for subscriber event rows.

Subscribers append rows as events are dispatched. Tables read them back
later through Generate with time bounds, and an Expirer trims rows that
fall outside the retention window.

# Architecture

	┌────────────────────── BOLTDB STORAGE ───────────────────────┐
	│                                                               │
	│  ┌───────────────────────────────────────────┐               │
	│  │            BoltStore                       │               │
	│  │  - File: <dataDir>/lookout.db              │               │
	│  │  - Transactions: ACID with fsync           │               │
	│  └──────────────────┬────────────────────────┘               │
	│                     │                                         │
	│  ┌──────────────────▼────────────────────────┐               │
	│  │              Bucket Structure              │               │
	│  │  events/                                   │               │
	│  │    file_events/     <time><seq> → Record   │               │
	│  │    process_events/  <time><seq> → Record   │               │
	│  │    ...                                     │               │
	│  │  meta/                                     │               │
	│  │    last_expiry                             │               │
	│  └────────────────────────────────────────────┘               │
	└───────────────────────────────────────────────────────────────┘

Keys are the big-endian event time in nanoseconds followed by the bucket
sequence, so a cursor walks records in event-time order and Generate can
Seek straight to the start bound. The sequence doubles as the event id
(eid) returned by Add.

Records are JSON-encoded types.Record values.

# Usage

	store, err := storage.NewBoltStore("/var/lib/lookout")
	if err != nil {
		return err
	}
	defer store.Close()

	eid, err := store.Add("file_events", time.Now(), row)

	records, err := store.Generate(ctx, "file_events", types.Bounds{
		Start: time.Now().Add(-time.Hour),
	})

	expirer := storage.NewExpirer(store, 24*time.Hour, 0)
	expirer.Start()
	defer expirer.Stop()

# Metrics

Add increments lookout_store_rows_total{subscriber}. Expire increments
lookout_store_expired_total{subscriber}.
*/
package storage
