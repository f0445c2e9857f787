package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/metrics"
)

// Dispatcher is what transition services depend on. Dispatch never reports
// failure to the caller: the state change it announces has already been
// committed and must not be rolled back by a notification problem.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// ContactReader is the slice of the profile store the fanout needs.
type ContactReader interface {
	ContactByUserID(ctx context.Context, userID uuid.UUID) (*directory.Contact, error)
}

type Fanout struct {
	store         Store
	contacts      ContactReader
	push          PushSink
	text          TextSink
	realtime      Publisher
	defaultLocale string
	sendTimeout   time.Duration
	log           zerolog.Logger
}

func NewFanout(store Store, contacts ContactReader, push PushSink, text TextSink, realtime Publisher, defaultLocale string, sendTimeout time.Duration, log zerolog.Logger) *Fanout {
	if defaultLocale == "" {
		defaultLocale = "es"
	}
	if sendTimeout <= 0 {
		sendTimeout = 3 * time.Second
	}
	return &Fanout{
		store:         store,
		contacts:      contacts,
		push:          push,
		text:          text,
		realtime:      realtime,
		defaultLocale: defaultLocale,
		sendTimeout:   sendTimeout,
		log:           log,
	}
}

// Dispatch delivers one event to every recipient across the persisted,
// push, text and realtime channels. Recipients are handled concurrently and
// independently: one failing channel never blocks or fails another.
func (f *Fanout) Dispatch(ctx context.Context, ev Event) {
	// The caller's request may finish (or be abandoned) before delivery does.
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, recipientID := range ev.Recipients {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			f.deliver(ctx, ev, id)
		}(recipientID)
	}
	wg.Wait()

	f.emit(ctx, ev.Category.Topic(), string(ev.Kind))
	if ev.Category != CategoryGeneric {
		// Badge counters listen on the generic topic regardless of category.
		f.emit(ctx, CategoryGeneric.Topic(), string(ev.Kind))
	}
}

func (f *Fanout) deliver(ctx context.Context, ev Event, recipientID uuid.UUID) {
	contact := &directory.Contact{UserID: recipientID, Locale: f.defaultLocale}
	if c, err := f.contacts.ContactByUserID(ctx, recipientID); err != nil {
		metrics.DispatchFailures.WithLabelValues("contact").Inc()
		f.log.Warn().Err(err).Str("recipient", recipientID.String()).
			Str("event", string(ev.Kind)).Msg("contact lookup failed, using defaults")
	} else {
		contact = c
	}

	locale := contact.Locale
	if locale == "" {
		locale = f.defaultLocale
	}
	title, body := Compose(locale, ev.Kind, ev.Params)

	n := &Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Category:    ev.Category,
		Title:       title,
		Message:     body,
		Link:        ev.Link,
		CreatedAt:   time.Now(),
	}
	if err := f.store.Insert(ctx, n); err != nil {
		metrics.DispatchFailures.WithLabelValues("store").Inc()
		f.log.Error().Err(err).Str("recipient", recipientID.String()).
			Str("event", string(ev.Kind)).Msg("persist notification failed")
	}

	if contact.PushToken != "" && !muted(contact.Prefs, ev.Kind) {
		sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
		err := f.push.Send(sendCtx, contact.PushToken, title, body)
		cancel()
		if err != nil {
			metrics.DispatchFailures.WithLabelValues("push").Inc()
			f.log.Warn().Err(err).Str("recipient", recipientID.String()).
				Str("event", string(ev.Kind)).Msg("push send failed")
		}
	}

	if ev.TextAlert && contact.Phone != "" {
		sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
		err := f.text.Send(sendCtx, contact.Phone, title+": "+body)
		cancel()
		if err != nil {
			metrics.DispatchFailures.WithLabelValues("text").Inc()
			f.log.Warn().Err(err).Str("recipient", recipientID.String()).
				Str("event", string(ev.Kind)).Msg("text send failed")
		}
	}
}

func (f *Fanout) emit(ctx context.Context, topic, event string) {
	if err := f.realtime.Emit(ctx, topic, event); err != nil {
		metrics.DispatchFailures.WithLabelValues("realtime").Inc()
		f.log.Warn().Err(err).Str("topic", topic).Str("event", event).Msg("realtime emit failed")
	}
}

// muted reports whether the recipient opted out of push messages for the
// category this event falls under. Persisted notifications and realtime
// events are never gated.
func muted(p directory.Prefs, kind Kind) bool {
	switch kind {
	case KindEmergencyCreated:
		return p.MuteEmergencies
	case KindAppointmentRequested, KindAppointmentApproved:
		return p.MuteAppointments
	default:
		return p.MuteStatusChanges
	}
}
