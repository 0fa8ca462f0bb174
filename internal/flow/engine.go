// Package flow implements the conversation engine for GymBot.
//
// The engine is a pure state-transition function: given the current
// conversation state and a normalized inbound text it mutates the state and
// returns the ordered replies plus persistence directives. It never touches
// the transport or the database itself, which keeps the whole chat flow
// testable without a live WhatsApp connection.
//
// Rules are an explicit ordered list evaluated first-match-wins. Several
// matchers are substring checks with overlap potential (e.g. "bro" inside
// "trimestre"-adjacent text), so the priority order is itself a contract;
// RuleNames exposes it for tests.
package flow

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/catalog"
	"github.com/gymbrocolombia/gymbot/internal/models"
)

// Result is everything the engine asks the dispatcher to do after handling
// one inbound message.
type Result struct {
	// Rule is the name of the matched rule, for logging and tests.
	Rule string
	// Replies are sent to the user in order.
	Replies []models.Reply
	// Persist requests an interaction upsert with the current plan.
	Persist bool
	// EndSession flushes the session to persistence and removes it.
	EndSession bool
	// Feedback, when non-empty, is recorded as the user's experience text.
	Feedback string
	// Contracted marks the contact as contracted in persistence.
	Contracted bool
	// ContractDurationDays accompanies Contracted when the plan is known.
	ContractDurationDays int
	// RunCleanup asks the caller to trigger the inactivity sweep.
	RunCleanup bool
	// Suppressed means the message was ignored entirely (human handoff).
	Suppressed bool
}

func (r Result) reply(texts ...string) Result {
	for _, t := range texts {
		r.Replies = append(r.Replies, models.TextReply(t))
	}
	return r
}

// Engine drives the scripted conversation flow.
type Engine struct {
	activeSessions func() int
	qrAssets       map[models.Location]string
	fileExists     func(path string) bool
	clock          func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithActiveSessionCounter supplies the active-session count used by the
// stats command.
func WithActiveSessionCounter(fn func() int) Option {
	return func(e *Engine) { e.activeSessions = fn }
}

// WithQRAsset registers the payment QR image for a site.
func WithQRAsset(loc models.Location, path string) Option {
	return func(e *Engine) { e.qrAssets[loc] = path }
}

// WithFileChecker overrides asset existence checks, for tests.
func WithFileChecker(fn func(path string) bool) Option {
	return func(e *Engine) { e.fileExists = fn }
}

// WithClock overrides the engine clock, for tests.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.clock = fn }
}

// NewEngine creates a conversation engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		activeSessions: func() int { return 0 },
		qrAssets:       make(map[models.Location]string),
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// greetingPattern matches "hola", "holaaa!", "hola ." and similar.
var greetingPattern = regexp.MustCompile(`^hola+[!\s.,]*$`)

type rule struct {
	name  string
	match func(e *Engine, st *models.ConversationState, text string) bool
	apply func(e *Engine, st *models.ConversationState, text string) Result
}

// rules is the fixed priority order. First match wins.
var rules = []rule{
	{"test", matchExact("test"), (*Engine).applyTest},
	{"cleanup", matchAnyExact("cleanup", "limpiar"), (*Engine).applyCleanup},
	{"stats", matchAnyExact("stats", "estadisticas"), (*Engine).applyStats},
	{"exit", matchExit, (*Engine).applyExit},
	{"terms-gate", matchTermsGate, (*Engine).applyTermsGate},
	{"location-gate", matchLocationGate, (*Engine).applyLocationGate},
	{"confirm-yes", matchAnyExact("sí", "si"), (*Engine).applyConfirmYes},
	{"confirm-no", matchExact("no"), (*Engine).applyConfirmNo},
	{"feedback-token", matchAnyExact("bien", "mal"), (*Engine).applyFeedback},
	{"feedback-pending", matchFeedbackPending, (*Engine).applyFeedback},
	{"info", matchInfo, (*Engine).applyInfo},
	{"plan-list", matchPlanList, (*Engine).applyPlanList},
	{"plan-keyword", matchPlanKeyword, (*Engine).applyPlanKeyword},
	{"purchase", matchPurchase, (*Engine).applyPurchase},
	{"main-menu", matchAnyExact("menu", "menú", "0"), (*Engine).applyMainMenu},
	{"schedules", matchSchedules, (*Engine).applySchedules},
	{"class-schedule", matchExact("4"), (*Engine).applyClassSchedule},
	{"recruiting", matchExact("5"), (*Engine).applyRecruiting},
	{"no-commitment", matchContainsAny("permanencia", "atadura", "amarrado"), (*Engine).applyNoCommitment},
	{"advisor", matchContainsAny("asesor"), (*Engine).applyAdvisor},
	{"registration", matchContainsAny("inscripcion", "inscripción", "registro"), (*Engine).applyRegistration},
	{"fallback", matchAlways, (*Engine).applyFallback},
}

// RuleNames returns the rule priority order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// Handle processes one inbound message against the session state. The text
// is lowercased and trimmed before rule evaluation. Sessions handed off to a
// human are suppressed entirely: no reply, no state change, no persistence.
func (e *Engine) Handle(st *models.ConversationState, text string) Result {
	if st.HandoffToHuman {
		slog.Debug("engine suppressed message for handed-off session", "phone", st.Phone)
		return Result{Rule: "suppressed", Suppressed: true}
	}

	norm := strings.ToLower(strings.TrimSpace(text))
	st.LastActivity = e.clock()

	for _, r := range rules {
		if !r.match(e, st, norm) {
			continue
		}
		res := r.apply(e, st, norm)
		res.Rule = r.name
		slog.Debug("engine handled message", "phone", st.Phone, "rule", r.name,
			"replies", len(res.Replies), "persist", res.Persist, "end_session", res.EndSession)
		return res
	}
	// Unreachable: the fallback rule always matches.
	return Result{Rule: "fallback"}
}

// --- matchers ---

func matchExact(token string) func(*Engine, *models.ConversationState, string) bool {
	return func(_ *Engine, _ *models.ConversationState, text string) bool { return text == token }
}

func matchAnyExact(tokens ...string) func(*Engine, *models.ConversationState, string) bool {
	return func(_ *Engine, _ *models.ConversationState, text string) bool {
		for _, t := range tokens {
			if text == t {
				return true
			}
		}
		return false
	}
}

func matchContainsAny(tokens ...string) func(*Engine, *models.ConversationState, string) bool {
	return func(_ *Engine, _ *models.ConversationState, text string) bool {
		for _, t := range tokens {
			if strings.Contains(text, t) {
				return true
			}
		}
		return false
	}
}

func matchAlways(_ *Engine, _ *models.ConversationState, _ string) bool { return true }

func matchExit(_ *Engine, _ *models.ConversationState, text string) bool {
	return text == "salir" || text == "finalizar" || strings.Contains(text, "cerrar chat")
}

func matchTermsGate(_ *Engine, st *models.ConversationState, _ string) bool {
	return !st.TermsAccepted
}

func matchLocationGate(_ *Engine, st *models.ConversationState, _ string) bool {
	return st.Location == models.LocationNone
}

func matchFeedbackPending(_ *Engine, st *models.ConversationState, text string) bool {
	if !st.AwaitingFeedback {
		return false
	}
	return len(text) > 3 || strings.Contains(text, "bien") ||
		strings.Contains(text, "excelente") || strings.Contains(text, "mala")
}

func matchInfo(_ *Engine, _ *models.ConversationState, text string) bool {
	return text == "1" || strings.Contains(text, "informacion") || strings.Contains(text, "información")
}

func matchPlanList(_ *Engine, _ *models.ConversationState, text string) bool {
	return text == "2" || strings.Contains(text, "membresia") || strings.Contains(text, "membresía") ||
		strings.Contains(text, "tarifas") || strings.Contains(text, "precios")
}

func matchPlanKeyword(_ *Engine, _ *models.ConversationState, text string) bool {
	_, ok := lookupPlanKeyword(text)
	return ok
}

func matchPurchase(_ *Engine, st *models.ConversationState, text string) bool {
	return strings.Contains(text, "contratar") || st.PaymentFlow == models.PaymentAwaitingMethod
}

func matchSchedules(_ *Engine, _ *models.ConversationState, text string) bool {
	return text == "3" || strings.Contains(text, "sede") || strings.Contains(text, "horario")
}

// planKeyword maps a loose keyword to its plan and home site. Matching is
// substring containment, preserving the original chat behavior; overlaps are
// resolved by table order and explicit exclusions.
type planKeyword struct {
	id       string
	home     models.Location
	aliases  []string
	excludes []string
}

var planKeywords = []planKeyword{
	{id: "motivado", home: models.LocationJulio},
	{id: "firme", home: models.LocationJulio},
	{id: "disciplinado", home: models.LocationJulio},
	{id: "superfitt", home: models.LocationJulio, aliases: []string{"superfitt", "superfit"}},
	{id: "pro", home: models.LocationJulio},
	{id: "flash", home: models.LocationVenecia},
	{id: "class", home: models.LocationVenecia},
	{id: "elite", home: models.LocationVenecia},
	{id: "bro", home: models.LocationVenecia, excludes: []string{"trimestre", "semestre"}},
	{id: "trimestre", home: models.LocationVenecia},
	{id: "semestre", home: models.LocationVenecia},
}

func lookupPlanKeyword(text string) (planKeyword, bool) {
	for _, pk := range planKeywords {
		aliases := pk.aliases
		if aliases == nil {
			aliases = []string{pk.id}
		}
		matched := false
		for _, a := range aliases {
			if strings.Contains(text, a) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		excluded := false
		for _, x := range pk.excludes {
			if strings.Contains(text, x) {
				excluded = true
				break
			}
		}
		if !excluded {
			return pk, true
		}
	}
	return planKeyword{}, false
}

// --- handlers ---

func (e *Engine) applyTest(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgTestAck)
}

func (e *Engine) applyCleanup(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true, RunCleanup: true}.reply(msgCleanupAck)
}

func (e *Engine) applyStats(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(statsMessage(e.activeSessions()))
}

func (e *Engine) applyExit(_ *models.ConversationState, _ string) Result {
	return Result{EndSession: true}.reply(msgFarewell)
}

func (e *Engine) applyTermsGate(st *models.ConversationState, text string) Result {
	switch {
	case text == "acepto":
		st.TermsAccepted = true
		return Result{Persist: true}.reply(msgLocationPrompt)
	case greetingPattern.MatchString(text) || strings.Contains(text, "hola"):
		return Result{Persist: true}.reply(msgPrivacyNotice)
	default:
		return Result{Persist: true}.reply(msgPrivacyReminder)
	}
}

func (e *Engine) applyLocationGate(st *models.ConversationState, text string) Result {
	switch {
	case text == "1" || strings.Contains(text, "julio"):
		st.Location = models.LocationJulio
	case text == "2" || strings.Contains(text, "venecia"):
		st.Location = models.LocationVenecia
	default:
		return Result{Persist: true}.reply(msgLocationReprompt)
	}
	return Result{Persist: true}.reply(mainMenu(st.Location, true))
}

func (e *Engine) applyConfirmYes(st *models.ConversationState, _ string) Result {
	st.AwaitingFeedback = true
	return Result{
		Persist:              true,
		Contracted:           true,
		ContractDurationDays: catalog.DurationDays(st.Plan),
	}.reply(msgExperienceAsk)
}

func (e *Engine) applyConfirmNo(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgNoContractAck)
}

func (e *Engine) applyFeedback(_ *models.ConversationState, text string) Result {
	return Result{Feedback: text, EndSession: true}.reply(msgFeedbackThanks)
}

func (e *Engine) applyInfo(st *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(infoMessage(st.Location))
}

func (e *Engine) applyPlanList(st *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(planListMessage(st.Location))
}

func (e *Engine) applyPlanKeyword(st *models.ConversationState, text string) Result {
	pk, _ := lookupPlanKeyword(text)
	if pk.home != st.Location {
		// Cross-location plan requests never set the plan.
		return Result{Persist: true}.reply(planNotAvailableMessage(st.Location))
	}
	plan, ok := catalog.Find(st.Location, pk.id)
	if !ok {
		return Result{Persist: true}.reply(msgFallback)
	}
	st.Plan = plan.ID
	return Result{Persist: true}.reply(planDetailMessage(st.Location, plan))
}

// applyPurchase drives the two-step purchase sub-flow: "contratar" moves to
// the payment-method menu, and the next classified inbound dispatches the
// method-specific instructions. Invalid method text re-sends the menu and
// leaves the state untouched.
func (e *Engine) applyPurchase(st *models.ConversationState, text string) Result {
	if st.PaymentFlow == models.PaymentAwaitingMethod {
		method, ok := classifyPaymentMethod(text)
		if !ok {
			return Result{Persist: true}.reply(msgInvalidPaymentOption, paymentMethodMenu(st.Plan))
		}
		st.PaymentFlow = models.PaymentIdle
		st.Plan = ""
		return e.dispatchPaymentMethod(st, method)
	}

	// Step A: an explicit plan may trail the command, e.g. "contratar flash".
	requested := ""
	if idx := strings.Index(text, "contratar"); idx >= 0 {
		requested = strings.TrimSpace(text[idx+len("contratar"):])
	}
	if requested != "" {
		if pk, ok := lookupPlanKeyword(requested); ok {
			if pk.home != st.Location {
				return Result{Persist: true}.reply(planNotAvailableMessage(st.Location))
			}
			st.Plan = pk.id
		}
	}
	if st.Plan == "" {
		return Result{Persist: true}.reply(msgUnknownPlanToContract)
	}
	st.PaymentFlow = models.PaymentAwaitingMethod
	return Result{Persist: true}.reply(paymentMethodMenu(st.Plan))
}

func classifyPaymentMethod(text string) (models.PaymentMethod, bool) {
	switch {
	case strings.Contains(text, "bancolombia") || strings.Contains(text, "nequi") ||
		strings.Contains(text, "daviplata") || strings.Contains(text, "transferencia"):
		return models.PaymentTransfer, true
	case strings.Contains(text, "addi"):
		return models.PaymentAddi, true
	case strings.Contains(text, "tarjeta") || strings.Contains(text, "crédito") || strings.Contains(text, "débito"):
		return models.PaymentCard, true
	case strings.Contains(text, "efectivo"):
		return models.PaymentCash, true
	case strings.Contains(text, "pse"):
		return models.PaymentPSE, true
	case text == "0" || strings.Contains(text, "menu") || strings.Contains(text, "menú"):
		return models.PaymentMenuReturn, true
	default:
		return "", false
	}
}

func (e *Engine) dispatchPaymentMethod(st *models.ConversationState, method models.PaymentMethod) Result {
	res := Result{Persist: true}
	switch method {
	case models.PaymentTransfer:
		path := e.qrAssets[st.Location]
		if path == "" || !e.fileExists(path) {
			slog.Warn("payment QR asset missing", "location", st.Location, "path", path)
			return res.reply(msgQRLoadFailed)
		}
		res.Replies = append(res.Replies, models.MediaReply(path, msgTransferCaption))
		return res.reply(msgTransferReceipt, msgRegistrationFollowUp)
	case models.PaymentAddi:
		return res.reply(msgAddiInstructions, msgReceiptAndRegistration)
	case models.PaymentCard, models.PaymentCash:
		return res.reply(inPersonPaymentMessage(method, st.Location))
	case models.PaymentPSE:
		return res.reply(msgPSEInstructions, msgReceiptAndRegistration)
	default: // menu-return: no payment instructions
		return res.reply(mainMenu(st.Location, false))
	}
}

func (e *Engine) applyMainMenu(st *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(mainMenu(st.Location, false))
}

func (e *Engine) applySchedules(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgSchedules)
}

func (e *Engine) applyClassSchedule(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgClassSchedule)
}

func (e *Engine) applyRecruiting(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgRecruiting)
}

func (e *Engine) applyNoCommitment(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgNoCommitment)
}

// applyAdvisor hands the conversation to a human. No persistence write: all
// further inbound for this identifier is suppressed until an operator clears
// the flag out-of-band.
func (e *Engine) applyAdvisor(st *models.ConversationState, _ string) Result {
	st.HandoffToHuman = true
	return Result{}.reply(msgAdvisorHandoff)
}

func (e *Engine) applyRegistration(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgNoEnrollmentFee)
}

func (e *Engine) applyFallback(_ *models.ConversationState, _ string) Result {
	return Result{Persist: true}.reply(msgFallback)
}
