// Package mapsync runs one synchronization of a topology document against a
// map stored on the monitoring server.
package mapsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fabricmap/core-go/internal/config"
	"fabricmap/core-go/internal/layout"
	"fabricmap/core-go/internal/metrics"
	"fabricmap/core-go/internal/sqlcgen"
	"fabricmap/core-go/internal/sysmap"
	"fabricmap/core-go/internal/topology"
)

var (
	ErrRemoteUpdateFailed = errors.New("map create/update failed")
	ErrRunInProgress      = errors.New("a sync run is already in progress")

	errNoDocument = fmt.Errorf("%w: no document", config.ErrMalformed)
)

// Remote is the monitoring server as seen by a run.
type Remote interface {
	topology.Registry
	MapByName(ctx context.Context, name string) (topology.RemoteMap, error)
	SaveMap(ctx context.Context, p sysmap.Payload) (string, error)
}

// RunStore records run history. *sqlcgen.Queries satisfies this.
type RunStore interface {
	InsertSyncRun(ctx context.Context, arg sqlcgen.InsertSyncRunParams) (sqlcgen.SyncRun, error)
	FinishSyncRun(ctx context.Context, arg sqlcgen.FinishSyncRunParams) (sqlcgen.SyncRun, error)
}

type Mode string

const (
	ModeCreate  Mode = "create"
	ModeUpdate  Mode = "update"
	ModePreview Mode = "preview"
)

const (
	statusRunning   = "running"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

type Result struct {
	RunID       string         `json:"run_id"`
	MapName     string         `json:"map_name"`
	MapID       string         `json:"map_id,omitempty"`
	Mode        Mode           `json:"mode"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Devices     int            `json:"devices"`
	Links       int            `json:"links"`
	Skipped     []string       `json:"skipped"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Payload     sysmap.Payload `json:"payload"`
}

type Options struct {
	KeepBorderLeafPair bool
	// Store is optional. Without it run ids are generated locally.
	Store   RunStore
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Syncer struct {
	log     zerolog.Logger
	remote  Remote
	store   RunStore
	metrics *metrics.Metrics
	layout  layout.Options
	now     func() time.Time

	running sync.Mutex
}

func New(log zerolog.Logger, remote Remote, opts Options) *Syncer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		log:     log,
		remote:  remote,
		store:   opts.Store,
		metrics: opts.Metrics,
		layout:  layout.Options{KeepBorderLeafPair: opts.KeepBorderLeafPair},
		now:     now,
	}
}

// Run builds the map described by doc and pushes it. Only one Run executes at
// a time; a concurrent call fails with ErrRunInProgress.
func (s *Syncer) Run(ctx context.Context, doc *config.Document) (Result, error) {
	if doc == nil {
		return Result{}, errNoDocument
	}
	if !s.running.TryLock() {
		return Result{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	start := s.now()
	res := Result{MapName: doc.Map.Name, StartedAt: start, Mode: ModeUpdate}
	var recorded bool
	res.RunID, recorded = s.beginRun(ctx, res.MapName)

	err := s.run(ctx, doc, &res)
	res.CompletedAt = s.now()

	res.Status = statusSucceeded
	if err != nil {
		res.Status = statusFailed
		res.Error = err.Error()
	}
	status := res.Status
	if recorded {
		s.finishRun(ctx, res, status, err)
	}

	s.metrics.IncSyncRun(string(res.Mode), status)
	s.metrics.ObserveSyncRunDuration(res.CompletedAt.Sub(start))
	s.metrics.AddSkippedDevices(len(res.Skipped))

	if err != nil {
		s.log.Error().Err(err).Str("run_id", res.RunID).Str("map", res.MapName).Msg("sync run failed")
		return res, err
	}
	s.metrics.SetMapSize(res.Devices, res.Links)
	s.log.Info().
		Str("run_id", res.RunID).
		Str("map", res.MapName).
		Str("map_id", res.MapID).
		Str("mode", string(res.Mode)).
		Int("devices", res.Devices).
		Int("links", res.Links).
		Int("skipped", len(res.Skipped)).
		Msg("map synchronized")
	return res, nil
}

func (s *Syncer) run(ctx context.Context, doc *config.Document, res *Result) error {
	payload, err := s.build(ctx, doc, res)
	if err != nil {
		return err
	}
	if payload.IsUpdate() {
		res.Mode = ModeUpdate
	} else {
		res.Mode = ModeCreate
	}

	id, err := s.remote.SaveMap(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRemoteUpdateFailed, res.Mode, res.MapName, err)
	}
	if id == "" {
		return fmt.Errorf("%w: %s %s: no map id returned", ErrRemoteUpdateFailed, res.Mode, res.MapName)
	}
	res.MapID = id
	return nil
}

// Preview builds the payload Run would push, without pushing it.
func (s *Syncer) Preview(ctx context.Context, doc *config.Document) (Result, error) {
	if doc == nil {
		return Result{}, errNoDocument
	}
	res := Result{
		RunID:     uuid.NewString(),
		MapName:   doc.Map.Name,
		Mode:      ModePreview,
		StartedAt: s.now(),
	}
	_, err := s.build(ctx, doc, &res)
	res.CompletedAt = s.now()

	res.Status = statusSucceeded
	if err != nil {
		res.Status = statusFailed
		res.Error = err.Error()
	}
	s.metrics.IncSyncRun(string(ModePreview), res.Status)
	return res, err
}

// build runs ingestion, layout, link derivation and assembly. Nothing is
// written to the remote side.
func (s *Syncer) build(ctx context.Context, doc *config.Document, res *Result) (sysmap.Payload, error) {
	if doc.Map.Name == "" {
		return sysmap.Payload{}, fmt.Errorf("%w: map name is required", config.ErrMalformed)
	}

	topo := topology.New(doc.Context, doc.Classifier())
	topo.Width = doc.Map.Width
	topo.Height = doc.Map.Height
	topo.IconWidth = doc.Map.IconWidth
	builder := topology.NewBuilder(s.log, s.remote, topo)

	target := sysmap.Target{Name: doc.Map.Name}
	remote, err := s.remote.MapByName(ctx, doc.Map.Name)
	switch {
	case errors.Is(err, topology.ErrMapNotFound):
		s.log.Warn().Str("map", doc.Map.Name).Msg("map not found, it will be created")
	case err != nil:
		return sysmap.Payload{}, fmt.Errorf("retrieve map %s: %w", doc.Map.Name, err)
	default:
		target.SysmapID = remote.ID
		if err := builder.IngestMap(ctx, remote); err != nil {
			return sysmap.Payload{}, err
		}
	}

	if err := builder.IngestConfig(ctx, doc.Declarations()); err != nil {
		return sysmap.Payload{}, err
	}

	strategy := layout.ForContext(topo.Context, s.layout)
	strategy.Place(topo)
	links := strategy.DeriveLinks(topo)

	target.Width = topo.Width
	target.Height = topo.Height
	payload := sysmap.Assemble(topo, links, target)

	res.Devices = topo.Len()
	res.Links = len(payload.Links)
	res.Skipped = builder.Skipped()
	res.Payload = payload
	return payload, nil
}

// beginRun returns the run id and whether the run is recorded in the store.
func (s *Syncer) beginRun(ctx context.Context, mapName string) (string, bool) {
	if s.store == nil {
		return uuid.NewString(), false
	}
	run, err := s.store.InsertSyncRun(ctx, sqlcgen.InsertSyncRunParams{
		MapName: mapName,
		Mode:    string(ModeUpdate),
		Status:  statusRunning,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("record sync run failed")
		return uuid.NewString(), false
	}
	return run.ID, true
}

func (s *Syncer) finishRun(ctx context.Context, res Result, status string, runErr error) {
	completed := res.CompletedAt
	arg := sqlcgen.FinishSyncRunParams{
		ID:          res.RunID,
		Status:      status,
		Mode:        string(res.Mode),
		CompletedAt: &completed,
		Stats: map[string]any{
			"devices": res.Devices,
			"links":   res.Links,
			"skipped": res.Skipped,
			"map_id":  res.MapID,
		},
	}
	if runErr != nil {
		msg := runErr.Error()
		arg.LastError = &msg
	}
	// The run's own context may already be cancelled; history is still written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.store.FinishSyncRun(ctx, arg); err != nil {
		s.log.Warn().Err(err).Str("run_id", res.RunID).Msg("update sync run failed")
	}
}
