// Package workflow runs the booking conversation state machine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/internal/bookingapi"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/drafts"
	"github.com/shliew97/frappe-whatsapp/internal/extraction"
	"github.com/shliew97/frappe-whatsapp/internal/intent"
	"github.com/shliew97/frappe-whatsapp/internal/messaging"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

var tracer = otel.Tracer("gateway.internal.workflow")

// historyWindow is 20 customer/assistant exchanges.
const historyWindow = 40

type intentResolver interface {
	Resolve(ctx context.Context, text string, c intent.Context) intent.Result
}

type historyStore interface {
	Append(ctx context.Context, sender string, msg conversation.ChatMessage) error
	Recent(ctx context.Context, sender string, n int) ([]conversation.ChatMessage, error)
}

// TransitionObserver is told about every state change a turn causes.
type TransitionObserver interface {
	ObserveTransition(from, to string)
}

// CallObserver is told about booking API calls.
type CallObserver interface {
	ObserveExternalCall(capability, outcome string)
}

// Deps are the engine's collaborators. Answerer and History are optional.
type Deps struct {
	Drafts     drafts.Store
	Intents    intentResolver
	Updates    intent.UpdateDetector
	Extractor  extraction.Extractor
	Answerer   conversation.Answerer
	Bookings   bookingapi.Client
	Dispatcher messaging.Dispatcher
	History    historyStore
}

type engineConfig struct {
	hours       booking.OperatingHours
	draftTTL    time.Duration
	replyDelay  time.Duration
	transitions TransitionObserver
	calls       CallObserver
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithOperatingHours sets the window timeslots are validated against.
func WithOperatingHours(h booking.OperatingHours) Option {
	return func(cfg *engineConfig) {
		if h.Close > h.Open {
			cfg.hours = h
		}
	}
}

// WithDraftTTL bounds how long a draft is kept after its last change.
func WithDraftTTL(ttl time.Duration) Option {
	return func(cfg *engineConfig) {
		if ttl > 0 {
			cfg.draftTTL = ttl
		}
	}
}

// WithReplyDelay paces the second and later replies of one turn.
func WithReplyDelay(d time.Duration) Option {
	return func(cfg *engineConfig) {
		if d >= 0 {
			cfg.replyDelay = d
		}
	}
}

// WithTransitionObserver reports state changes.
func WithTransitionObserver(obs TransitionObserver) Option {
	return func(cfg *engineConfig) {
		cfg.transitions = obs
	}
}

// WithCallObserver reports booking API outcomes.
func WithCallObserver(obs CallObserver) Option {
	return func(cfg *engineConfig) {
		cfg.calls = obs
	}
}

// WithClock overrides the time source used for confirmation timestamps.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Engine handles coalesced customer turns. All calls for one sender must be
// serialized by the caller; the engine does no per-sender locking.
type Engine struct {
	deps   Deps
	cfg    engineConfig
	logger *logging.Logger
}

// NewEngine wires the state machine.
func NewEngine(deps Deps, logger *logging.Logger, opts ...Option) *Engine {
	switch {
	case deps.Drafts == nil:
		panic("workflow: draft store cannot be nil")
	case deps.Intents == nil:
		panic("workflow: intent resolver cannot be nil")
	case deps.Updates == nil:
		panic("workflow: update detector cannot be nil")
	case deps.Extractor == nil:
		panic("workflow: extractor cannot be nil")
	case deps.Bookings == nil:
		panic("workflow: booking client cannot be nil")
	case deps.Dispatcher == nil:
		panic("workflow: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := engineConfig{
		hours:    booking.DefaultOperatingHours,
		draftTTL: drafts.DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Engine{deps: deps, cfg: cfg, logger: logger}
}

// turn carries one turn's working state. draft is nil once deleted.
type turn struct {
	sender  string
	text    string
	draft   *booking.Draft
	history []conversation.ChatMessage
	replies int
}

// State reports the workflow state of sender.
func (e *Engine) State(ctx context.Context, sender string) (booking.State, error) {
	draft, err := e.deps.Drafts.Get(ctx, sender)
	if err != nil {
		return booking.StateIdle, fmt.Errorf("workflow: load draft: %w", err)
	}
	return draft.State(), nil
}

// HandleTurn runs one coalesced text turn through the state machine.
func (e *Engine) HandleTurn(ctx context.Context, in conversation.Turn) error {
	text := strings.TrimSpace(in.Text)
	if in.Sender == "" || text == "" {
		return nil
	}
	return e.run(ctx, in.Sender, text, func(ctx context.Context, t *turn) error {
		return e.route(ctx, t)
	})
}

// HandleInteractive handles one non-text message. Button and list replies are
// treated as typed replies; flow submissions are merged as booking fields.
func (e *Engine) HandleInteractive(ctx context.Context, msg conversation.InboundMessage) error {
	switch msg.Kind {
	case conversation.KindButton, conversation.KindInteractive:
		reply := strings.TrimSpace(msg.Text)
		if reply == "" {
			reply = strings.TrimSpace(msg.Payload)
		}
		return e.HandleTurn(ctx, conversation.Turn{Sender: msg.Sender, SenderName: msg.SenderName, Text: reply})
	case conversation.KindFlow:
		return e.handleFlow(ctx, msg)
	case conversation.KindReaction:
		if isApproval(msg.Payload) {
			return e.HandleTurn(ctx, conversation.Turn{Sender: msg.Sender, Text: msg.Payload})
		}
		e.logger.Debug("ignoring reaction", "sender", msg.Sender, "emoji", msg.Payload)
		return nil
	case conversation.KindMedia:
		if strings.TrimSpace(msg.Text) != "" {
			return e.HandleTurn(ctx, conversation.Turn{Sender: msg.Sender, SenderName: msg.SenderName, Text: msg.Text})
		}
		e.logger.Info("ignoring media without caption", "sender", msg.Sender, "message_id", msg.ID)
		return nil
	}
	return e.HandleTurn(ctx, conversation.Turn{Sender: msg.Sender, SenderName: msg.SenderName, Text: msg.Text})
}

func isApproval(emoji string) bool {
	switch strings.TrimSpace(emoji) {
	case "👍", "👌":
		return true
	}
	return false
}

func (e *Engine) handleFlow(ctx context.Context, msg conversation.InboundMessage) error {
	values, err := decodeFlowResponse(msg.Payload)
	if err != nil {
		e.logger.Warn("dropping malformed flow response", "error", err, "sender", msg.Sender, "message_id", msg.ID)
		return nil
	}
	fields := booking.PartialFromValues(values)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = "[booking form]"
	}
	return e.run(ctx, msg.Sender, text, func(ctx context.Context, t *turn) error {
		if t.draft != nil && t.draft.Confirmed {
			t.draft = freshDraft(t.draft)
		}
		return e.collect(ctx, t, fields)
	})
}

func (e *Engine) run(ctx context.Context, sender, text string, step func(context.Context, *turn) error) error {
	ctx, span := tracer.Start(ctx, "workflow.handle_turn")
	defer span.End()
	span.SetAttributes(attribute.String("sender", sender))

	draft, err := e.deps.Drafts.Get(ctx, sender)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("failed to load draft", "error", err, "sender", sender)
		e.send(ctx, &turn{sender: sender}, msgTemporaryFailure)
		return fmt.Errorf("workflow: load draft: %w", err)
	}

	t := &turn{sender: sender, text: text, draft: draft, history: e.recentHistory(ctx, sender)}
	e.remember(ctx, sender, conversation.ChatRoleUser, text)

	from := draft.State()
	err = step(ctx, t)
	to := t.draft.State()
	span.SetAttributes(attribute.String("state.from", string(from)), attribute.String("state.to", string(to)))
	if err != nil {
		span.RecordError(err)
	}
	if e.cfg.transitions != nil {
		e.cfg.transitions.ObserveTransition(string(from), string(to))
	}
	e.logger.Info("turn handled", "sender", sender, "from", from, "to", to)
	return err
}

// route applies the transitions in priority order.
func (e *Engine) route(ctx context.Context, t *turn) error {
	d := t.draft
	switch {
	case d == nil:
	case d.Confirmed && intent.HasCancelIntent(t.text):
		return e.cancel(ctx, t)
	case !d.Confirmed && intent.HasExplicitCancel(t.text) && !intent.LooksLikeQuestion(t.text):
		return e.cancel(ctx, t)
	}

	switch d.State() {
	case booking.StateAwaitingUpdateConfirmation:
		return e.resolveUpdate(ctx, t)
	case booking.StateConfirmed:
		handled, err := e.proposeUpdate(ctx, t)
		if handled || err != nil {
			return err
		}
		if !intent.HasBookingIntent(t.text) && !intent.LooksLikeBookingDetails(t.text) {
			return e.answer(ctx, t)
		}
		t.draft = freshDraft(d)
		return e.collect(ctx, t, nil)
	case booking.StateAwaitingConfirmation:
		handled, err := e.resolveConfirmation(ctx, t)
		if handled || err != nil {
			return err
		}
	}

	pending := t.draft != nil && !t.draft.Confirmed
	if pending || intent.HasBookingIntent(t.text) || intent.LooksLikeBookingDetails(t.text) {
		return e.collect(ctx, t, nil)
	}
	return e.answer(ctx, t)
}

// freshDraft starts a new booking for a customer whose previous one is
// confirmed, keeping who they are.
func freshDraft(prev *booking.Draft) *booking.Draft {
	next := booking.NewDraft(prev.Sender)
	next.Merge(booking.Partial{
		booking.FieldCustomerName: prev.Fields.Value(booking.FieldCustomerName),
		booking.FieldPhone:        prev.Fields.Value(booking.FieldPhone),
	})
	return next
}

func (e *Engine) cancel(ctx context.Context, t *turn) error {
	d := t.draft
	if !d.Confirmed {
		if err := e.discard(ctx, t); err != nil {
			return err
		}
		e.send(ctx, t, msgDraftDiscarded)
		return nil
	}

	reference := d.BookingReference
	_, err := e.deps.Bookings.Cancel(ctx, t.sender, reference)
	e.observeCall("booking_cancel", err)
	if err != nil {
		e.logger.Error("booking cancellation failed", "error", err, "sender", t.sender, "reference", reference)
		e.send(ctx, t, cancelFailedMessage(reference))
		return nil
	}
	if err := e.discard(ctx, t); err != nil {
		return err
	}
	e.send(ctx, t, cancelledMessage(reference))
	return nil
}

func (e *Engine) resolveUpdate(ctx context.Context, t *turn) error {
	d := t.draft
	res := e.classify(ctx, t)
	switch res.Intent {
	case intent.Confirm:
		updated := d.Clone()
		updated.Merge(d.PendingUpdateFields)
		conf, err := e.deps.Bookings.Update(ctx, t.sender, updated, d.BookingReference)
		e.observeCall("booking_update", err)
		if err != nil {
			e.logger.Error("booking update failed", "error", err, "sender", t.sender, "reference", d.BookingReference)
			e.send(ctx, t, updateFailedMessage(d.BookingReference))
			return nil
		}
		reference := d.BookingReference
		if reference == "" {
			reference = conf.Reference
		}
		updated.MarkConfirmed(reference, e.cfg.now())
		t.draft = updated
		if err := e.save(ctx, t); err != nil {
			return err
		}
		e.send(ctx, t, updatedMessage(updated))
		return nil
	case intent.Reject, intent.Update:
		d.PendingUpdateFields = nil
		d.AwaitingUpdateConfirmation = false
		if err := e.save(ctx, t); err != nil {
			return err
		}
		e.send(ctx, t, msgUpdateDiscarded)
		return nil
	}
	if res.Intent == intent.Question || intent.LooksLikeQuestion(t.text) {
		return e.answer(ctx, t)
	}
	e.send(ctx, t, updateReprompt(d))
	return nil
}

// proposeUpdate reports whether the turn was an update request for a
// confirmed booking.
func (e *Engine) proposeUpdate(ctx context.Context, t *turn) (bool, error) {
	d := t.draft
	res, err := e.deps.Updates.DetectUpdate(ctx, t.history, t.text, d)
	if err != nil {
		e.logger.Warn("update detection failed", "error", err, "sender", t.sender)
		return false, nil
	}
	if !res.IsUpdate {
		return false, nil
	}

	fields := res.Fields.Clone()
	if len(fields.Fields()) == 0 {
		e.send(ctx, t, msgAskWhatToChange)
		return true, nil
	}
	if fields.Present(booking.FieldTimeslot) {
		check := booking.ValidateTimeslot(e.cfg.hours, fields[booking.FieldTimeslot])
		if !check.Valid {
			e.send(ctx, t, check.Message)
			return true, nil
		}
		fields[booking.FieldTimeslot] = check.Normalized
	}

	changes, valid, invalid := d.Diff(fields)
	if len(changes) == 0 {
		if msg := invalidFieldsMessage(invalid); msg != "" {
			e.send(ctx, t, msg)
		} else {
			e.send(ctx, t, msgNothingToUpdate)
		}
		return true, nil
	}

	d.PendingUpdateFields = valid
	d.AwaitingUpdateConfirmation = true
	if err := e.save(ctx, t); err != nil {
		return true, err
	}
	e.send(ctx, t, updatePrompt(changes))
	if msg := invalidFieldsMessage(invalid); msg != "" {
		e.send(ctx, t, msg)
	}
	return true, nil
}

// resolveConfirmation reports whether the turn answered the confirmation
// prompt. Unhandled turns fall through to collection.
func (e *Engine) resolveConfirmation(ctx context.Context, t *turn) (bool, error) {
	res := e.classify(ctx, t)
	switch {
	case res.Intent == intent.Question || res.Intent == intent.Cancel || intent.IsUnrelatedTopic(t.text):
		// A cancel that reaches here was asked about, not requested.
		return true, e.answer(ctx, t)
	case res.Intent == intent.Confirm:
		return true, e.commit(ctx, t)
	case res.Intent == intent.Reject || res.Intent == intent.Update:
		return true, e.reviseBeforeConfirm(ctx, t)
	}
	return false, nil
}

func (e *Engine) commit(ctx context.Context, t *turn) error {
	d := t.draft
	if !d.AwaitingConfirmation || !d.ConfirmationShown() || d.MateriallyChanged() || !d.Complete() {
		e.logger.Warn("confirmation not shown for current details, asking again", "sender", t.sender)
		return e.showProgress(ctx, t, nil)
	}

	conf, err := e.deps.Bookings.Commit(ctx, t.sender, d)
	e.observeCall("booking_commit", err)
	if err != nil {
		e.logger.Error("booking commit failed", "error", err, "sender", t.sender, "rejected", errors.Is(err, bookingapi.ErrRejected))
		if derr := e.discard(ctx, t); derr != nil {
			return derr
		}
		e.send(ctx, t, msgCommitFailed)
		return nil
	}

	d.MarkConfirmed(conf.Reference, e.cfg.now())
	if err := e.save(ctx, t); err != nil {
		return err
	}
	e.logger.Info("booking confirmed", "sender", t.sender, "reference", conf.Reference)
	e.send(ctx, t, confirmedMessage(d))
	return nil
}

func (e *Engine) reviseBeforeConfirm(ctx context.Context, t *turn) error {
	d := t.draft
	var fields booking.Partial
	res, err := e.deps.Updates.DetectUpdate(ctx, t.history, t.text, d)
	if err != nil {
		e.logger.Warn("update detection failed", "error", err, "sender", t.sender)
	} else {
		fields = res.Fields
	}
	if len(fields.Fields()) == 0 {
		fields = e.extract(ctx, t)
	}

	if len(fields.Fields()) == 0 {
		d.ResetConfirmation()
		if err := e.save(ctx, t); err != nil {
			return err
		}
		e.send(ctx, t, msgAskWhatToChange)
		return nil
	}
	return e.apply(ctx, t, fields)
}

// collect merges extracted fields into the draft. Pre-extracted fields skip
// the extractor.
func (e *Engine) collect(ctx context.Context, t *turn, fields booking.Partial) error {
	if t.draft == nil {
		t.draft = booking.NewDraft(t.sender)
	}
	if fields == nil {
		fields = e.extract(ctx, t)
	}

	if len(fields.Fields()) == 0 && !intent.HasBookingIntent(t.text) &&
		(intent.LooksLikeQuestion(t.text) || intent.IsUnrelatedTopic(t.text)) {
		return e.answer(ctx, t)
	}
	return e.apply(ctx, t, fields)
}

func (e *Engine) extract(ctx context.Context, t *turn) booking.Partial {
	var existing booking.Partial
	if t.draft != nil {
		existing = t.draft.Values()
	}
	fields, err := e.deps.Extractor.Extract(ctx, extraction.Request{
		History:  t.history,
		Message:  t.text,
		Existing: existing,
	})
	if err != nil {
		e.logger.Warn("field extraction failed", "error", err, "sender", t.sender)
		return nil
	}
	return fields
}

// apply merges fields, validates the timeslot and shows either the
// confirmation prompt or the missing fields. A material change always forces
// a fresh confirmation.
func (e *Engine) apply(ctx context.Context, t *turn, fields booking.Partial) error {
	d := t.draft
	fields = fields.Clone()
	var violation string
	if fields.Present(booking.FieldTimeslot) {
		check := booking.ValidateTimeslot(e.cfg.hours, fields[booking.FieldTimeslot])
		if check.Valid {
			fields[booking.FieldTimeslot] = check.Normalized
		} else {
			delete(fields, booking.FieldTimeslot)
			violation = check.Message
		}
	}

	merged := d.Merge(fields)
	if d.AwaitingConfirmation && d.MateriallyChanged() {
		d.ResetConfirmation()
	}

	if violation != "" {
		if err := e.save(ctx, t); err != nil {
			return err
		}
		e.send(ctx, t, violation)
		if msg := invalidFieldsMessage(merged.Invalid); msg != "" {
			e.send(ctx, t, msg)
		}
		return nil
	}

	if msg := invalidFieldsMessage(merged.Invalid); msg != "" {
		e.send(ctx, t, msg)
	}
	return e.showProgress(ctx, t, merged.Changed)
}

// showProgress persists the draft and sends the next prompt.
func (e *Engine) showProgress(ctx context.Context, t *turn, changed []booking.Field) error {
	d := t.draft
	d.ApplyDefaults()
	if d.Complete() {
		d.MarkConfirmationShown()
		if err := e.save(ctx, t); err != nil {
			return err
		}
		e.send(ctx, t, confirmationPrompt(d))
		return nil
	}

	d.ResetConfirmation()
	if err := e.save(ctx, t); err != nil {
		return err
	}
	e.send(ctx, t, missingFieldsMessage(d.Missing(), len(changed) > 0))
	return nil
}

func (e *Engine) answer(ctx context.Context, t *turn) error {
	if e.deps.Answerer == nil {
		e.send(ctx, t, msgAnswerUnavailable)
		return nil
	}
	reply, err := e.deps.Answerer.Answer(ctx, t.history, t.text)
	if err != nil {
		e.logger.Warn("answering engine unavailable", "error", err, "sender", t.sender)
		reply = msgAnswerUnavailable
	}
	e.send(ctx, t, reply)
	return nil
}

func (e *Engine) classify(ctx context.Context, t *turn) intent.Result {
	res := e.deps.Intents.Resolve(ctx, t.text, intent.Context{
		State:      t.draft.State(),
		LastPrompt: lastAssistantMessage(t.history),
	})
	switch {
	case res.Fallback():
		e.observeOutcome("classify", "fallback")
	case res.Source == intent.SourceModel:
		e.observeOutcome("classify", "ok")
	}
	return res
}

func lastAssistantMessage(history []conversation.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.ChatRoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

func (e *Engine) save(ctx context.Context, t *turn) error {
	t.draft.UpdatedAt = e.cfg.now().UTC()
	if err := e.deps.Drafts.Set(ctx, t.sender, t.draft, e.cfg.draftTTL); err != nil {
		e.logger.Error("failed to save draft", "error", err, "sender", t.sender)
		e.send(ctx, t, msgTemporaryFailure)
		return fmt.Errorf("workflow: save draft: %w", err)
	}
	return nil
}

func (e *Engine) discard(ctx context.Context, t *turn) error {
	if err := e.deps.Drafts.Delete(ctx, t.sender); err != nil {
		e.logger.Error("failed to delete draft", "error", err, "sender", t.sender)
		e.send(ctx, t, msgTemporaryFailure)
		return fmt.Errorf("workflow: delete draft: %w", err)
	}
	t.draft = nil
	return nil
}

// send dispatches a reply. Delivery failures are logged, not returned: the
// draft has already been saved.
func (e *Engine) send(ctx context.Context, t *turn, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	var delay time.Duration
	if t.replies > 0 {
		delay = e.cfg.replyDelay
	}
	t.replies++
	if err := e.deps.Dispatcher.Send(ctx, messaging.Outbound{To: t.sender, Text: text, Delay: delay}); err != nil {
		e.logger.Error("failed to send reply", "error", err, "sender", t.sender)
		return
	}
	e.remember(ctx, t.sender, conversation.ChatRoleAssistant, text)
}

func (e *Engine) recentHistory(ctx context.Context, sender string) []conversation.ChatMessage {
	if e.deps.History == nil {
		return nil
	}
	history, err := e.deps.History.Recent(ctx, sender, historyWindow)
	if err != nil {
		e.logger.Warn("failed to load chat history", "error", err, "sender", sender)
		return nil
	}
	return history
}

func (e *Engine) remember(ctx context.Context, sender, role, content string) {
	if e.deps.History == nil {
		return
	}
	if err := e.deps.History.Append(ctx, sender, conversation.ChatMessage{Role: role, Content: content}); err != nil {
		e.logger.Warn("failed to append chat history", "error", err, "sender", sender)
	}
}

func (e *Engine) observeCall(capability string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.observeOutcome(capability, outcome)
}

func (e *Engine) observeOutcome(capability, outcome string) {
	if e.cfg.calls != nil {
		e.cfg.calls.ObserveExternalCall(capability, outcome)
	}
}
