// Package checkout implements the ordering state machine that drives the
// host's primary-action button from browsing to a submitted order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"shop-miniapp/internal/affordance"
	"shop-miniapp/internal/cart"
	"shop-miniapp/internal/model"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultMinContactLength = 5
	DefaultSubmitTimeout    = 15 * time.Second
)

// Messages shown to the user.
const (
	contactRequiredMessage = "contact required: please enter a phone number or @username we can reach you at"
	genericFailureMessage  = "Could not place the order. Check your connection and try again."
)

// Submitter sends one order to the backend.
// Implementations perform exactly one network call and never retry.
type Submitter interface {
	Submit(ctx context.Context, order *model.Order) error
}

// Notifier shows blocking notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n model.Notice)
}

// Config wires a Flow to its collaborators.
type Config struct {
	Cart       *cart.Store
	Affordance *affordance.Affordance
	Submitter  Submitter
	Notifier   Notifier
	Identity   model.Identity
	Logger     *slog.Logger

	MinContactLength int           // Default: 5
	SubmitTimeout    time.Duration // Default: 15s
	Currency         string        // Optional label suffix, e.g. "TJS"
}

// Transition records one stage change.
type Transition struct {
	From   Stage
	To     Stage
	Action string
	At     time.Time
}

// State is a read-only snapshot of the flow for rendering.
type State struct {
	Stage          Stage
	Contact        string
	Comment        string
	Total          model.Price
	Lines          []cart.Line
	LastError      *model.APIError
	CloseRequested bool
}

// Flow is the checkout state machine of one session.
//
// All events are serialised behind a single mutex. The order submission is the
// only call made without holding it; while it runs the flow is pinned in
// StageSubmitting and every user action is rejected with a BUSY error.
type Flow struct {
	mu sync.Mutex

	cart      *cart.Store
	aff       *affordance.Affordance
	submitter Submitter
	notifier  Notifier
	identity  model.Identity
	logger    *slog.Logger

	minContact    int
	submitTimeout time.Duration
	currency      string

	stage          Stage
	contact        string
	comment        string
	total          model.Price
	lastErr        *model.APIError
	closeRequested bool
	cancelSubmit   context.CancelFunc
	history        []Transition
}

// New creates a flow in StageBrowsing and binds the affordance for the
// current cart contents.
func New(cfg Config) (*Flow, error) {
	if cfg.Cart == nil {
		return nil, fmt.Errorf("cart is required")
	}
	if cfg.Affordance == nil {
		return nil, fmt.Errorf("affordance is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}

	f := &Flow{
		cart:          cfg.Cart,
		aff:           cfg.Affordance,
		submitter:     cfg.Submitter,
		notifier:      cfg.Notifier,
		identity:      cfg.Identity,
		logger:        cfg.Logger,
		minContact:    cfg.MinContactLength,
		submitTimeout: cfg.SubmitTimeout,
		currency:      cfg.Currency,
		stage:         StageBrowsing,
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.minContact <= 0 {
		f.minContact = DefaultMinContactLength
	}
	if f.submitTimeout <= 0 {
		f.submitTimeout = DefaultSubmitTimeout
	}
	if f.identity.DisplayName == "" && f.identity.UserID == 0 {
		f.identity = model.GuestIdentity()
	}

	f.cart.Subscribe(f.cartChanged)

	f.mu.Lock()
	f.total = f.cart.Total()
	f.render()
	f.mu.Unlock()

	return f, nil
}

// === Cart events ===

// Add puts one unit of productID in the cart.
// Unknown products are logged and reported as NOT_FOUND; the flow is unaffected.
func (f *Flow) Add(ctx context.Context, productID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	if err := f.cart.Add(productID); err != nil {
		f.logger.WarnContext(ctx, "add to cart ignored",
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Remove takes one unit of productID out of the cart.
func (f *Flow) Remove(ctx context.Context, productID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	f.cart.Remove(productID)
	return nil
}

// cartChanged runs synchronously inside Add/Remove/Clear, with f.mu held.
func (f *Flow) cartChanged() {
	f.total = f.cart.Total()

	switch f.stage {
	case StageCartOpen, StagePaymentOpen:
		if f.cart.IsEmpty() {
			_ = f.transition(StageBrowsing, "cart emptied")
			return
		}
		f.render()
	case StageBrowsing:
		f.render()
	}
}

// === User transitions ===

// OpenCart moves Browsing → CartOpen. It is a no-op when the cart is empty
// or already open. Leaving payment goes through Back.
func (f *Flow) OpenCart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	switch f.stage {
	case StageCartOpen:
		return nil
	case StageBrowsing:
		if f.cart.IsEmpty() {
			return nil
		}
		return f.transition(StageCartOpen, "open cart")
	default:
		return model.NewTransitionError(f.stage.String(), "open cart")
	}
}

// CloseCart moves CartOpen → Browsing. No-op while browsing.
func (f *Flow) CloseCart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	if f.stage == StageBrowsing {
		return nil
	}
	if f.stage != StageCartOpen {
		return model.NewTransitionError(f.stage.String(), "close cart")
	}
	return f.transition(StageBrowsing, "close cart")
}

// SetContact records the contact and comment fields of the order form.
// The form is only editable while the cart is open.
func (f *Flow) SetContact(ctx context.Context, contact, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	if f.stage != StageCartOpen {
		return model.NewTransitionError(f.stage.String(), "edit contact")
	}
	f.contact = contact
	f.comment = comment
	return nil
}

// Proceed moves CartOpen → PaymentOpen once the contact passes validation.
// A failed validation raises a blocking notice and leaves the stage and the
// bound handler untouched.
func (f *Flow) Proceed(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	if f.stage != StageCartOpen {
		return model.NewTransitionError(f.stage.String(), "proceed to payment")
	}
	if err := f.validateContact(); err != nil {
		f.lastErr = err
		f.notify(ctx, model.NewErrorNotice(err.Code, contactRequiredMessage))
		return err
	}
	f.lastErr = nil
	return f.transition(StagePaymentOpen, "proceed")
}

// Back moves PaymentOpen → CartOpen.
func (f *Flow) Back(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(); err != nil {
		return err
	}
	if f.stage != StagePaymentOpen {
		return model.NewTransitionError(f.stage.String(), "go back")
	}
	return f.transition(StageCartOpen, "back")
}

// ConfirmPayment moves PaymentOpen → Submitting, sends the order and settles
// in Closed on success or back in PaymentOpen on failure.
//
// The call blocks until the submission finishes, times out or the session is
// closed. Concurrent calls observe StageSubmitting and get a BUSY error.
func (f *Flow) ConfirmPayment(ctx context.Context) error {
	f.mu.Lock()
	if err := f.guard(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.stage != StagePaymentOpen {
		err := model.NewTransitionError(f.stage.String(), "confirm payment")
		f.mu.Unlock()
		return err
	}

	order := f.buildOrder()
	submitCtx, cancel := context.WithTimeout(ctx, f.submitTimeout)
	f.cancelSubmit = cancel
	f.lastErr = nil
	if err := f.transition(StageSubmitting, "confirm payment"); err != nil {
		cancel()
		f.cancelSubmit = nil
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	f.logger.InfoContext(ctx, "submitting order",
		slog.Int64("user_id", order.UserID),
		slog.Int("items", len(order.Items)),
		slog.Int64("total", int64(order.Total)),
	)
	submitErr := f.submitter.Submit(submitCtx, order)
	cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelSubmit = nil

	if f.stage != StageSubmitting {
		// Session closed while the request was in flight.
		f.logger.InfoContext(ctx, "order result discarded",
			slog.String("stage", f.stage.String()),
			slog.Bool("succeeded", submitErr == nil),
		)
		return model.NewClosedError()
	}

	if submitErr == nil {
		f.logger.InfoContext(ctx, "order submitted", slog.Int64("user_id", order.UserID))
		f.cart.Clear()
		f.closeRequested = true
		return f.transition(StageClosed, "order submitted")
	}

	apiErr := classify(submitErr)
	f.lastErr = apiErr
	f.logger.WarnContext(ctx, "order submission failed",
		slog.String("code", apiErr.Code),
		slog.String("error", submitErr.Error()),
	)
	f.notify(ctx, model.NewErrorNotice(apiErr.Code, failureMessage(apiErr)))
	if err := f.transition(StagePaymentOpen, "submission failed"); err != nil {
		return err
	}
	return apiErr
}

// Close ends the session. An in-flight submission is abandoned without
// waiting for its result. Closing twice is a no-op.
func (f *Flow) Close(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stage == StageClosed {
		return
	}
	if f.cancelSubmit != nil {
		f.cancelSubmit()
		f.cancelSubmit = nil
	}
	_ = f.transition(StageClosed, "session closed")
	f.cart.Clear()
}

// === Read side ===

// Stage returns the current stage.
func (f *Flow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// State returns a snapshot for rendering.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return State{
		Stage:          f.stage,
		Contact:        f.contact,
		Comment:        f.comment,
		Total:          f.total,
		Lines:          f.cart.Lines(),
		LastError:      f.lastErr,
		CloseRequested: f.closeRequested,
	}
}

// History returns the transitions taken so far.
func (f *Flow) History() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transition(nil), f.history...)
}

// === Internals (f.mu held) ===

// guard rejects user events while a submission is in flight or after close.
func (f *Flow) guard() error {
	switch f.stage {
	case StageSubmitting:
		return model.NewBusyError()
	case StageClosed:
		return model.NewClosedError()
	}
	return nil
}

// transition changes stage, recomputes the total and rebinds the affordance
// as its last step.
func (f *Flow) transition(to Stage, action string) error {
	from := f.stage
	if !CanTransition(from, to) {
		return model.NewTransitionError(from.String(), action)
	}

	f.stage = to
	f.history = append(f.history, Transition{From: from, To: to, Action: action, At: time.Now()})
	f.logger.Debug("checkout transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("action", action),
	)

	f.total = f.cart.Total()
	f.render()
	return nil
}

// render binds the affordance for the current stage. Visibility and handler
// are a pure function of stage and cart emptiness.
func (f *Flow) render() {
	switch f.stage {
	case StageBrowsing:
		if f.cart.IsEmpty() {
			f.aff.Hide()
			return
		}
		f.aff.Bind(f.label("Checkout"), affordance.NewHandler("open_cart", f.onClick(f.OpenCart)))
	case StageCartOpen:
		f.aff.Bind(f.label("Checkout"), affordance.NewHandler("proceed", f.onClick(f.Proceed)))
	case StagePaymentOpen:
		f.aff.Bind(f.label("Pay"), affordance.NewHandler("confirm_payment", f.onClick(f.ConfirmPayment)))
	case StageSubmitting:
		f.aff.Busy()
	case StageClosed:
		f.aff.Hide()
	}
}

func (f *Flow) label(verb string) string {
	return verb + ": " + model.FormatAmount(f.total, f.currency)
}

// onClick adapts a transition to a click handler. Errors were already
// surfaced as notices or are stage rejections; they are only logged here.
func (f *Flow) onClick(action func(context.Context) error) func(context.Context) {
	return func(ctx context.Context) {
		if err := action(ctx); err != nil {
			f.logger.DebugContext(ctx, "click rejected", slog.String("error", err.Error()))
		}
	}
}

func (f *Flow) validateContact() *model.APIError {
	contact := strings.TrimSpace(f.contact)
	if contact == "" || utf8.RuneCountInString(contact) < f.minContact {
		return model.NewValidationError("contact", "contact required")
	}
	return nil
}

func (f *Flow) buildOrder() *model.Order {
	return &model.Order{
		UserID:      f.identity.UserID,
		Name:        f.identity.DisplayName,
		ContactInfo: strings.TrimSpace(f.contact),
		Items:       f.cart.Snapshot(),
		Total:       f.cart.Total(),
		Comment:     f.comment,
	}
}

func (f *Flow) notify(ctx context.Context, n model.Notice) {
	if f.notifier != nil {
		f.notifier.Notify(ctx, n)
	}
}

// classify maps a submitter error onto the error taxonomy.
// Anything that is not already an APIError is treated as a transport failure.
func classify(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewNetworkError("order backend", err)
}

// failureMessage prefers the server's own text.
func failureMessage(err *model.APIError) string {
	if err.Code == model.CodeServer && err.Message != "" {
		return err.Message
	}
	if err.Code == model.CodeValidation && err.Message != "" {
		return err.Message
	}
	return genericFailureMessage
}
