package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"trivia-kiosk/models"
	"trivia-kiosk/utils"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

const (
	channelSessions     = "cdc-sessions"
	channelParticipants = "cdc-participants"
	channelPlays        = "cdc-plays"
)

// EventSink is where the subscriber side of the notifier delivers
// decoded change events and connectivity transitions. In production it
// is the reconciler.
type EventSink interface {
	Offer(ev models.ChangeEvent)
	OnSubscriptionStatus(connected bool)
}

// Notifier is both halves of the change-notification collaborator: the
// publisher fans row changes out to PubNub (called from store hooks),
// and the subscriber feeds them back into the reconciler. Publishes go
// through a circuit breaker; when PubNub is down the poll fallback is
// the delivery path, so a failed publish is logged and dropped.
type Notifier struct {
	pubnub   *pubnub.PubNub
	redis    *redis.Client
	breaker  *utils.CircuitBreaker
	origin   string
	listener *pubnub.Listener
	done     chan struct{}
}

func NewNotifier(pn *pubnub.PubNub, redisClient *redis.Client, origin string) *Notifier {
	return &Notifier{
		pubnub:  pn,
		redis:   redisClient,
		breaker: utils.NewCircuitBreaker("pubnub-publish"),
		origin:  origin,
		done:    make(chan struct{}),
	}
}

func channelForTable(table string) string {
	switch table {
	case models.TableSessions:
		return channelSessions
	case models.TableParticipants:
		return channelParticipants
	case models.TablePlays:
		return channelPlays
	}
	return ""
}

// PublishChange fans one row change out on the table's channel.
func (n *Notifier) PublishChange(ctx context.Context, table, action, recordID string, record any) {
	channel := channelForTable(table)
	if channel == "" {
		slog.Warn("no change channel for table", "table", table)
		return
	}

	body, err := json.Marshal(record)
	if err != nil {
		slog.Error("marshal change record", "table", table, "error", err)
		return
	}

	_, err = n.breaker.Execute(ctx, func() (any, error) {
		_, st, err := n.pubnub.Publish().
			Channel(channel).
			Message(map[string]any{
				"table":     table,
				"action":    action,
				"record_id": recordID,
				"origin":    n.origin,
				"record":    json.RawMessage(body),
			}).
			Execute()
		if err != nil {
			return nil, err
		}
		if st.Error != nil {
			return nil, fmt.Errorf("pubnub publish: %w", st.Error)
		}
		return nil, nil
	})
	if err != nil {
		slog.Warn("change publish dropped, polling will cover",
			"table", table,
			"action", action,
			"record", recordID,
			"error", err,
		)
	}
}

// PublishQueuePositions mirrors each waiting participant's position
// into Redis (for the registration device's status poll) and announces
// the ordering on the session channel.
func (n *Notifier) PublishQueuePositions(ctx context.Context, sessionID string, queue []models.Participant) {
	ordered := make([]string, 0, len(queue))
	for i, p := range queue {
		posKey := fmt.Sprintf("queue:position:%s:%s", sessionID, p.ID)
		n.redis.Set(ctx, posKey, i+1, 15*time.Second)
		ordered = append(ordered, p.ID)
	}

	_, _ = n.breaker.Execute(ctx, func() (any, error) {
		_, _, err := n.pubnub.Publish().
			Channel("session-" + sessionID).
			Message(map[string]any{
				"type":  "queue_positions",
				"order": ordered,
			}).
			Execute()
		return nil, err
	})
}

// CacheBoardSnapshot keeps the latest projection in Redis so a display
// that reloads can render before its subscription settles.
func (n *Notifier) CacheBoardSnapshot(ctx context.Context, view *models.BoardView, ttl time.Duration) {
	if view.SessionID == "" {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	n.redis.Set(ctx, "board:snapshot:"+view.SessionID, data, ttl)
}

// Subscribe attaches the listener to the three change channels and
// pumps decoded events into the sink until ctx is cancelled. Events
// published by this same process instance are delivered too; the
// reconciler's ledger makes them harmless duplicates.
func (n *Notifier) Subscribe(ctx context.Context, sink EventSink) {
	n.listener = pubnub.NewListener()
	n.pubnub.AddListener(n.listener)

	go func() {
		defer close(n.done)
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-n.listener.Status:
				if st == nil {
					continue
				}
				switch st.Category {
				case pubnub.PNConnectedCategory, pubnub.PNReconnectedCategory:
					slog.Info("change subscription connected")
					sink.OnSubscriptionStatus(true)
				case pubnub.PNDisconnectedCategory, pubnub.PNTimeoutCategory,
					pubnub.PNAccessDeniedCategory:
					slog.Warn("change subscription lost", "category", st.Category)
					sink.OnSubscriptionStatus(false)
				}
			case msg := <-n.listener.Message:
				if msg == nil {
					continue
				}
				ev, err := decodeChangeMessage(msg.Message)
				if err != nil {
					slog.Warn("dropping malformed change notification",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				sink.Offer(*ev)
			case <-n.listener.Presence:
				// presence is noise for this feed
			}
		}
	}()

	n.pubnub.Subscribe().
		Channels([]string{channelSessions, channelParticipants, channelPlays}).
		Execute()
}

// Unsubscribe tears the listener down. Safe to call once after the
// subscribe context is cancelled.
func (n *Notifier) Unsubscribe() {
	if n.listener == nil {
		return
	}
	n.pubnub.Unsubscribe().
		Channels([]string{channelSessions, channelParticipants, channelPlays}).
		Execute()
	n.pubnub.RemoveListener(n.listener)

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		slog.Warn("notifier listener did not stop in time")
	}
}

// decodeChangeMessage round-trips the loosely-typed PubNub payload
// through JSON into the validated envelope.
func decodeChangeMessage(raw any) (*models.ChangeEvent, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal message: %w", err)
	}

	var ev models.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
