// Package persist implements the optional bbolt-backed dashboard snapshot
// store described in SPEC_FULL.md §2.2/§3.1: a key/value wrapper, adapted
// from the teacher's pkg/storage/boltdb.go, that checkpoints each mirror's
// collected stats under a single "dashboards" bucket keyed by host URL and
// reloads them at startup so a restarted process doesn't start every mirror
// from a cold, zeroed dashboard.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/shardha/pkg/dashboard"
)

var bucketDashboards = []byte("dashboards")

// DashboardSnapshot is the serialized form of one host's collected
// dashboard statistics (the sum of its ring buckets): the outcome taxonomy
// counters, the host aggregates, the consecutive-error streak, and when it
// was captured. It is purely
// additive — the in-memory HostDashboard ring remains the source of truth
// during a run; a reloaded snapshot only seeds AgentStats at startup.
type DashboardSnapshot struct {
	Host              string    `json:"host"`
	Counters          []uint64  `json:"counters"`
	HostAggregates    []uint64  `json:"host_aggregates"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	CapturedAt        time.Time `json:"captured_at"`
}

// Store is a bbolt-backed key/value wrapper over the dashboards bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and ensures the
// dashboards bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open dashboard snapshot store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDashboards)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dashboards bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the underlying bbolt file is still open and
// answering transactions, for use as a readiness signal.
func (s *Store) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

// Save writes one host's snapshot, upserting any prior entry.
func (s *Store) Save(snap DashboardSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal dashboard snapshot for %s: %w", snap.Host, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDashboards).Put([]byte(snap.Host), data)
	})
}

// SaveDashboard implements pkg/dispatch.SnapshotPersister: it captures
// dash's full-history collected stat and consecutive-error streak and
// saves it under host.
func (s *Store) SaveDashboard(host string, dash *dashboard.HostDashboard) error {
	stat := dash.GetCollectedStat(dashboard.BucketCount)
	return s.Save(DashboardSnapshot{
		Host:              host,
		Counters:          append([]uint64(nil), stat.Counters[:]...),
		HostAggregates:    append([]uint64(nil), stat.Host[:]...),
		ConsecutiveErrors: dash.ConsecutiveErrors(),
		CapturedAt:        time.Now(),
	})
}

// Load returns the saved snapshot for host, or (_, false, nil) if none was
// ever saved.
func (s *Store) Load(host string) (DashboardSnapshot, bool, error) {
	var snap DashboardSnapshot
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDashboards).Get([]byte(host))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &snap)
	})
	return snap, found, err
}

// LoadAll returns every saved snapshot, keyed by host URL.
func (s *Store) LoadAll() (map[string]DashboardSnapshot, error) {
	out := make(map[string]DashboardSnapshot)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDashboards).ForEach(func(k, v []byte) error {
			var snap DashboardSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("unmarshal dashboard snapshot for %s: %w", k, err)
			}
			out[string(k)] = snap
			return nil
		})
	})
	return out, err
}

// Seed copies a loaded snapshot's counters into stats, restoring the
// permanent AgentStats aggregates a mirror carried before the last restart.
func Seed(stats *dashboard.AgentStats, snap DashboardSnapshot) {
	copy(stats.Counters[:], snap.Counters)
	copy(stats.Host[:], snap.HostAggregates)
}
