package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trivia-kiosk/config"
	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"
	"trivia-kiosk/monitoring"
)

type ledgerKey struct {
	table string
	id    string
}

// versionPair is what the dedup ledger remembers per row: the last
// (updated_at, status) acted on. Identical pairs are true duplicates.
type versionPair struct {
	updatedAt time.Time
	rowStatus string
}

// Reconciler is the single writer into the state machine and queue
// manager. Change notifications and poll results land on one bounded
// channel and are folded in by one goroutine; every other component
// reads snapshots or submits commands.
type Reconciler struct {
	store    Store
	sm       *StateMachine
	queue    *QueueManager
	notifier *Notifier
	cfg      *config.Config

	events   chan models.ChangeEvent
	commands chan func()
	statusCh chan bool

	ledger    map[ledgerKey]versionPair
	sessionID string
	connected bool

	mu            sync.RWMutex
	view          models.BoardView
	lastPositions string
}

func NewReconciler(store Store, notifier *Notifier, cfg *config.Config) *Reconciler {
	return &Reconciler{
		store:    store,
		sm:       NewStateMachine(),
		queue:    NewQueueManager(),
		notifier: notifier,
		cfg:      cfg,
		events:   make(chan models.ChangeEvent, cfg.EventBufferSize),
		commands: make(chan func()),
		statusCh: make(chan bool, 8),
		ledger:   make(map[ledgerKey]versionPair),
		view:     models.BoardView{BoardPhase: models.BoardIdle, WaitingQueue: []models.Participant{}},
	}
}

// Offer hands an event to the apply loop without blocking the producer.
// A full buffer drops the event; the next poll cycle re-delivers the
// row state, so a drop costs latency, not correctness.
func (r *Reconciler) Offer(ev models.ChangeEvent) {
	select {
	case r.events <- ev:
	default:
		slog.Warn("event buffer full, dropping notification",
			"table", ev.Table,
			"record", ev.RecordID,
		)
		monitoring.TrackReconcileEvent(ev.Table, "dropped")
	}
}

// OnSubscriptionStatus is called from the notifier's listener goroutine.
func (r *Reconciler) OnSubscriptionStatus(connected bool) {
	monitoring.SetSubscriptionUp(connected)
	select {
	case r.statusCh <- connected:
	default:
	}
}

// Do runs fn inside the apply loop and waits for it to finish. This is
// how the orchestrator mutates queue and session state without a second
// writer.
func (r *Reconciler) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case r.commands <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bind points the reconciler at a session: ledger and queue are
// cleared, then a full snapshot is fetched before any incremental
// event applies. Requires the Run loop to be live.
func (r *Reconciler) Bind(ctx context.Context, sessionID string) error {
	var err error
	doErr := r.Do(ctx, func() {
		r.sessionID = sessionID
		r.ledger = make(map[ledgerKey]versionPair)
		r.queue.Reset()
		r.sm.Bind(nil)
		err = r.resync(ctx)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SessionID returns the currently bound session id.
func (r *Reconciler) SessionID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.SessionID
}

// Snapshot returns a copy of the projection. Handshake fields are
// merged in by the orchestrator.
func (r *Reconciler) Snapshot() models.BoardView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view := r.view
	view.WaitingQueue = append([]models.Participant(nil), r.view.WaitingQueue...)
	return view
}

// Run is the apply loop. All projection mutation happens here.
func (r *Reconciler) Run(ctx context.Context) {
	pollTimer := time.NewTimer(r.pollInterval())
	defer pollTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-r.events:
			r.applyEvent(ctx, ev)
			r.refreshView(ctx)

		case cmd := <-r.commands:
			cmd()
			r.refreshView(ctx)

		case connected := <-r.statusCh:
			wasConnected := r.connected
			r.connected = connected
			if connected && !wasConnected && r.sessionID != "" {
				// Close the window of missed events before trusting
				// the feed again.
				if err := r.resync(ctx); err != nil {
					slog.Error("post-reconnect resync failed", "error", err)
				}
				r.refreshView(ctx)
			}
			if !pollTimer.Stop() {
				select {
				case <-pollTimer.C:
				default:
				}
			}
			pollTimer.Reset(r.pollInterval())

		case <-pollTimer.C:
			if r.sessionID != "" {
				mode := "fallback"
				if r.connected {
					mode = "idle"
				}
				monitoring.TrackPollCycle(mode)
				if err := r.resync(ctx); err != nil {
					slog.Error("poll cycle failed", "error", err)
				}
				r.refreshView(ctx)
			}
			pollTimer.Reset(r.pollInterval())
		}
	}
}

func (r *Reconciler) pollInterval() time.Duration {
	if r.connected {
		return r.cfg.PollIdleInterval
	}
	return r.cfg.PollFallbackInterval
}

// resync fetches a full snapshot and folds every row through the same
// apply-if-newer path as incremental events.
func (r *Reconciler) resync(ctx context.Context) error {
	session, err := r.store.GetSession(ctx, r.sessionID)
	if err != nil {
		return err
	}
	if r.sm.Session() == nil {
		r.sm.Bind(session)
		r.ledger[ledgerKey{models.TableSessions, session.ID}] = versionPair{session.UpdatedAt, session.Status}
	} else {
		r.applySessionRow(session)
	}

	participants, err := r.store.ListParticipants(ctx, r.sessionID)
	if err != nil {
		return err
	}
	for i := range participants {
		r.applyParticipantRow(&participants[i])
	}
	return nil
}

// applyEvent validates, dedups and routes one change event.
func (r *Reconciler) applyEvent(ctx context.Context, ev models.ChangeEvent) {
	if err := ev.Validate(); err != nil {
		slog.Warn("dropping invalid change event", "error", err)
		monitoring.TrackReconcileEvent(ev.Table, "invalid")
		return
	}

	switch ev.Table {
	case models.TableParticipants:
		if ev.Action == models.ActionDelete {
			r.queue.Dequeue(ev.RecordID)
			delete(r.ledger, ledgerKey{ev.Table, ev.RecordID})
			monitoring.TrackReconcileEvent(ev.Table, "applied")
			return
		}
		row, err := ev.DecodeParticipant()
		if err != nil {
			slog.Warn("dropping malformed participant payload", "record", ev.RecordID, "error", err)
			monitoring.TrackReconcileEvent(ev.Table, "invalid")
			return
		}
		r.applyParticipantRow(row)

	case models.TableSessions:
		if ev.Action == models.ActionDelete {
			return
		}
		row, err := ev.DecodeSession()
		if err != nil {
			slog.Warn("dropping malformed session payload", "record", ev.RecordID, "error", err)
			monitoring.TrackReconcileEvent(ev.Table, "invalid")
			return
		}
		r.applySessionRow(row)

	case models.TablePlays:
		// Plays do not drive lifecycle; the board feedback for remote
		// plays is refreshed by the owning client's session updates.
		monitoring.TrackReconcileEvent(ev.Table, "ignored")
	}
}

func (r *Reconciler) applyParticipantRow(p *models.Participant) {
	if p.SessionID != r.sessionID {
		return
	}

	key := ledgerKey{models.TableParticipants, p.ID}
	ts, rowStatus := p.VersionKey()
	pair := versionPair{ts, rowStatus}
	if seen, ok := r.ledger[key]; ok && seen == pair {
		monitoring.TrackReconcileEvent(models.TableParticipants, "duplicate")
		return
	}
	if seen, ok := r.ledger[key]; ok && ts.Before(seen.updatedAt) {
		// A poll result can race an in-flight request; older rows never
		// overwrite newer state.
		monitoring.TrackReconcileEvent(models.TableParticipants, "stale")
		return
	}
	r.ledger[key] = pair

	if !p.Waiting() {
		r.queue.Dequeue(p.ID)
		if current := r.queue.Current(); current != nil && current.ID == p.ID {
			r.queue.SetCurrent(nil)
		}
		monitoring.TrackReconcileEvent(models.TableParticipants, "applied")
		return
	}

	if r.sm.MarkRegistered(p) {
		// First registration binds straight onto the open slot.
		r.queue.Dequeue(p.ID)
		r.queue.SetCurrent(p)
	} else if current := r.queue.Current(); current != nil && current.ID == p.ID {
		r.queue.SetCurrent(p)
	} else {
		r.queue.Enqueue(p)
	}
	monitoring.TrackReconcileEvent(models.TableParticipants, "applied")
}

func (r *Reconciler) applySessionRow(row *models.Session) {
	if row.ID != r.sessionID {
		return
	}

	key := ledgerKey{models.TableSessions, row.ID}
	pair := versionPair{row.UpdatedAt, row.Status}
	if seen, ok := r.ledger[key]; ok && seen == pair {
		monitoring.TrackReconcileEvent(models.TableSessions, "duplicate")
		return
	}
	// Stale rejections are recorded too, so the same late event does
	// not re-run the rejection path on every poll cycle.
	if seen, ok := r.ledger[key]; !ok || !row.UpdatedAt.Before(seen.updatedAt) {
		r.ledger[key] = pair
	}

	if err := r.sm.Apply(row); err != nil {
		if errors.Is(err, status.ErrStaleEvent) {
			monitoring.TrackReconcileEvent(models.TableSessions, "stale")
			return
		}
		slog.Warn("session row rejected", "session", row.ID, "error", err)
		return
	}
	monitoring.TrackReconcileEvent(models.TableSessions, "applied")
}

// Cleanup drops completed participants from the queue and prunes
// ledger entries for rows gone from the session. Run on an interval by
// the maintenance scheduler.
func (r *Reconciler) Cleanup(ctx context.Context) error {
	return r.Do(ctx, func() {
		removed := r.queue.CleanupCompleted()
		for _, id := range removed {
			delete(r.ledger, ledgerKey{models.TableParticipants, id})
		}
		if len(removed) > 0 {
			slog.Info("queue cleanup removed finished participants", "count", len(removed))
		}
	})
}

// refreshView rebuilds the published projection and fans out queue
// positions when the ordering changed.
func (r *Reconciler) refreshView(ctx context.Context) {
	session := r.sm.Session()
	queue := r.queue.Snapshot()
	current := r.queue.Current()

	r.mu.Lock()
	if session != nil {
		r.view.SessionID = session.ID
		r.view.SessionStatus = session.Status
	} else {
		r.view.SessionID = r.sessionID
		r.view.SessionStatus = ""
	}
	r.view.CurrentParticipant = current
	r.view.WaitingQueue = queue
	view := r.view
	r.mu.Unlock()

	monitoring.SetQueueLength(r.sessionID, len(queue))

	if r.notifier == nil || r.sessionID == "" {
		return
	}

	ids := make([]string, len(queue))
	for i, p := range queue {
		ids[i] = p.ID
	}
	joined := strings.Join(ids, ",")
	r.mu.Lock()
	changed := joined != r.lastPositions
	r.lastPositions = joined
	r.mu.Unlock()

	if changed {
		r.notifier.PublishQueuePositions(ctx, r.sessionID, queue)
	}
	r.notifier.CacheBoardSnapshot(ctx, &view, r.cfg.SnapshotCacheTTL)
}
