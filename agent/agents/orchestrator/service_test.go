package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/specialist"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/supervisor"
	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	eventsx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/events"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/faq"
	nodex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/nodes"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

// Monday 2030-03-04 10:07 UTC
var testNow = time.Date(2030, 3, 4, 10, 7, 0, 0, time.UTC)

type fakeStore struct {
	*statex.MemoryStore
	saveErr error
	saves   atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: statex.NewMemoryStore()}
}

func (f *fakeStore) Save(ctx context.Context, conv *statex.Conversation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves.Add(1)
	return f.MemoryStore.Save(ctx, conv)
}

type fakeSupervisor struct {
	c     contractx.Classification
	err   error
	calls int
}

func (f *fakeSupervisor) Classify(ctx context.Context, conv *statex.Conversation) (contractx.Classification, error) {
	f.calls++
	return f.c, f.err
}

func route(kind contractx.SpecialistKind) *fakeSupervisor {
	return &fakeSupervisor{c: contractx.Classification{Route: contractx.Route(kind), Reason: "test"}}
}

type fakeSpecialist struct {
	kind  contractx.SpecialistKind
	act   func(conv *statex.Conversation) (contractx.Decision, error)
	calls atomic.Int32
}

func (f *fakeSpecialist) Kind() contractx.SpecialistKind {
	return f.kind
}

func (f *fakeSpecialist) Act(ctx context.Context, conv *statex.Conversation) (contractx.Decision, error) {
	f.calls.Add(1)
	return f.act(conv)
}

func answering(kind contractx.SpecialistKind, text string) *fakeSpecialist {
	return &fakeSpecialist{kind: kind, act: func(*statex.Conversation) (contractx.Decision, error) {
		return contractx.Answer(text), nil
	}}
}

type fakeRegistry struct {
	supervisor  contractx.Supervisor
	specialists map[contractx.SpecialistKind]contractx.Specialist
}

func newFakeRegistry(sup contractx.Supervisor, specs ...*fakeSpecialist) *fakeRegistry {
	r := &fakeRegistry{supervisor: sup, specialists: map[contractx.SpecialistKind]contractx.Specialist{}}
	for _, s := range specs {
		r.specialists[s.kind] = s
	}
	return r
}

func (f *fakeRegistry) Supervisor() contractx.Supervisor {
	return f.supervisor
}

func (f *fakeRegistry) Specialist(kind contractx.SpecialistKind) (contractx.Specialist, bool) {
	s, ok := f.specialists[kind]
	return s, ok
}

type fakeTools struct {
	validateErr error
	result      func(req contractx.ToolRequest) contractx.ToolResult
	invoked     []contractx.ToolRequest
}

func (f *fakeTools) Validate(origin contractx.SpecialistKind, req contractx.ToolRequest) error {
	return f.validateErr
}

func (f *fakeTools) Invoke(ctx context.Context, origin contractx.SpecialistKind, req contractx.ToolRequest) (contractx.ToolResult, error) {
	f.invoked = append(f.invoked, req)
	if f.result == nil {
		return contractx.ToolResult{Tool: req.Tool, Result: []byte(`{"ok":true}`)}, nil
	}
	return f.result(req), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []eventsx.TurnEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if e, ok := payload.(eventsx.TurnEvent); ok {
		p.events = append(p.events, e)
	}
	return p.err
}

func newTestOrchestrator(t *testing.T, store statex.Store, registry contractx.Registry, tools contractx.ToolGateway, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	o, err := New(store, registry, tools, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func mustLoad(t *testing.T, store statex.Store, id string) *statex.Conversation {
	t.Helper()
	conv, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", id, err)
	}
	return conv
}

func TestHandleTurnInvalidInput(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistBooking)), &fakeTools{})

	_, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c1", Text: "   "})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if store.saves.Load() != 0 {
		t.Fatalf("rejected turn must not be saved")
	}
}

func TestHandleTurnGeneratesConversationID(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistFAQ), answering(contractx.SpecialistFAQ, "We open at 8am.")), &fakeTools{})

	resp, err := o.HandleTurn(context.Background(), TurnRequest{Text: "when do you open?"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.ConversationID == "" {
		t.Fatalf("expected a generated conversation id")
	}
	if resp.Answer != "We open at 8am." || resp.Status != contractx.TurnCompleted {
		t.Fatalf("unexpected response %#v", resp)
	}

	conv := mustLoad(t, store, resp.ConversationID)
	if conv.Phase != statex.PhaseAwaitingUserTurn {
		t.Fatalf("expected persisted phase awaiting, got %s", conv.Phase)
	}
	if conv.LastSpecialist != string(contractx.SpecialistFAQ) || conv.ActiveSpecialist != "" {
		t.Fatalf("unexpected specialist bookkeeping last=%q active=%q", conv.LastSpecialist, conv.ActiveSpecialist)
	}
}

func TestHandleTurnClarifyRunsNoSpecialist(t *testing.T) {
	t.Parallel()

	sup := &fakeSupervisor{c: contractx.Clarify("Would you like to book or cancel?", "tie")}
	booking := answering(contractx.SpecialistBooking, "unused")
	tools := &fakeTools{}
	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(sup, booking), tools)

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-clarify", Text: "appointment"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnClarify || resp.Answer != "Would you like to book or cancel?" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if booking.calls.Load() != 0 || len(tools.invoked) != 0 {
		t.Fatalf("clarify must not run specialists or tools")
	}

	conv := mustLoad(t, store, "c-clarify")
	if conv.IterationCount != 0 {
		t.Fatalf("expected no iterations, got %d", conv.IterationCount)
	}
	last := conv.Turns[len(conv.Turns)-1]
	if !last.Final || last.Author != "" {
		t.Fatalf("expected a final answer without author, got %#v", last)
	}
}

func TestHandleTurnClassificationErrorApologises(t *testing.T) {
	t.Parallel()

	sup := &fakeSupervisor{err: contractx.ErrModelInvoke}
	o := newTestOrchestrator(t, newFakeStore(), newFakeRegistry(sup), &fakeTools{})

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-err", Text: "hello"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnFailed || resp.Answer != nodex.ApologyAnswer {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestHandleTurnHandoffCycleTerminates(t *testing.T) {
	t.Parallel()

	booking := &fakeSpecialist{kind: contractx.SpecialistBooking, act: func(*statex.Conversation) (contractx.Decision, error) {
		return contractx.Handoff(contractx.SpecialistCancellation, "not mine"), nil
	}}
	cancellation := &fakeSpecialist{kind: contractx.SpecialistCancellation, act: func(*statex.Conversation) (contractx.Decision, error) {
		return contractx.Handoff(contractx.SpecialistBooking, "not mine either"), nil
	}}
	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistBooking), booking, cancellation), &fakeTools{})

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-cycle", Text: "help"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnFallback || resp.Answer != nodex.FallbackAnswer {
		t.Fatalf("unexpected response %#v", resp)
	}

	conv := mustLoad(t, store, "c-cycle")
	if conv.IterationCount > nodex.DefaultBudget {
		t.Fatalf("iterations %d exceed budget", conv.IterationCount)
	}
	handoffs := 0
	for _, turn := range conv.CurrentTurn() {
		if turn.HandoffTo != "" {
			handoffs++
		}
	}
	if handoffs != 2 {
		t.Fatalf("expected 2 recorded handoffs before the cycle, got %d", handoffs)
	}
	if booking.calls.Load() != 2 || cancellation.calls.Load() != 1 {
		t.Fatalf("unexpected calls booking=%d cancellation=%d", booking.calls.Load(), cancellation.calls.Load())
	}
}

func TestHandleTurnBudgetExhausted(t *testing.T) {
	t.Parallel()

	booking := &fakeSpecialist{kind: contractx.SpecialistBooking, act: func(*statex.Conversation) (contractx.Decision, error) {
		return contractx.CallTool(toolx.ToolFindAvailableSlots, map[string]any{"date": "2030-03-05"}), nil
	}}
	tools := &fakeTools{}
	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistBooking), booking), tools, WithBudget(4))

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-budget", Text: "book"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnFallback || resp.Answer != nodex.FallbackAnswer {
		t.Fatalf("unexpected response %#v", resp)
	}
	if booking.calls.Load() != 4 || len(tools.invoked) != 4 {
		t.Fatalf("expected 4 specialist calls and 4 tool calls, got %d and %d", booking.calls.Load(), len(tools.invoked))
	}

	conv := mustLoad(t, store, "c-budget")
	if conv.IterationCount != 4 || conv.PendingToolCall != nil {
		t.Fatalf("unexpected state iterations=%d pending=%v", conv.IterationCount, conv.PendingToolCall)
	}
	if got := len(conv.ToolTurns()); got != 4 {
		t.Fatalf("expected 4 tool turns, got %d", got)
	}
}

func TestHandleTurnToolErrorIsFedBack(t *testing.T) {
	t.Parallel()

	booking := &fakeSpecialist{kind: contractx.SpecialistBooking, act: func(conv *statex.Conversation) (contractx.Decision, error) {
		tools := conv.ToolTurns()
		if len(tools) == 0 {
			return contractx.CallTool(toolx.ToolCreateBooking, map[string]any{"slot": "taken"}), nil
		}
		last := tools[len(tools)-1]
		return contractx.Answer(fmt.Sprintf("failed=%t kind=%s", last.Failed, last.ErrorKind)), nil
	}}
	tools := &fakeTools{result: func(req contractx.ToolRequest) contractx.ToolResult {
		return contractx.ToolResult{Tool: req.Tool, Error: "create_booking failed: slot taken", ErrorKind: contractx.KindSlotConflict}
	}}
	o := newTestOrchestrator(t, newFakeStore(), newFakeRegistry(route(contractx.SpecialistBooking), booking), tools)

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-tool", Text: "book"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Answer != "failed=true kind=slot_conflict" || resp.Status != contractx.TurnCompleted {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestHandleTurnInvalidToolArgsSkipsInvocation(t *testing.T) {
	t.Parallel()

	booking := &fakeSpecialist{kind: contractx.SpecialistBooking, act: func(*statex.Conversation) (contractx.Decision, error) {
		return contractx.CallTool(toolx.ToolCreateBooking, map[string]any{"bogus": 1}), nil
	}}
	tools := &fakeTools{validateErr: fmt.Errorf("%w: missing slot", contractx.ErrInvalidToolArgs)}
	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistBooking), booking), tools)

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-args", Text: "book"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnFailed || resp.Answer != nodex.ApologyAnswer {
		t.Fatalf("unexpected response %#v", resp)
	}
	if len(tools.invoked) != 0 {
		t.Fatalf("invalid request must not be invoked")
	}
	if conv := mustLoad(t, store, "c-args"); len(conv.ToolTurns()) != 0 {
		t.Fatalf("no tool turn expected, got %d", len(conv.ToolTurns()))
	}
}

func TestHandleTurnSpecialistErrorApologises(t *testing.T) {
	t.Parallel()

	booking := &fakeSpecialist{kind: contractx.SpecialistBooking, act: func(*statex.Conversation) (contractx.Decision, error) {
		return contractx.Decision{}, errors.New("boom")
	}}
	o := newTestOrchestrator(t, newFakeStore(), newFakeRegistry(route(contractx.SpecialistBooking), booking), &fakeTools{})

	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-boom", Text: "book"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnFailed || resp.Answer != nodex.ApologyAnswer {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestHandleTurnSaveErrorPropagates(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("save failed")
	store := newFakeStore()
	store.saveErr = saveErr
	publisher := &recordingPublisher{}
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistFAQ), answering(contractx.SpecialistFAQ, "ok")), &fakeTools{}, WithPublisher(publisher))

	_, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-save", Text: "hello"})
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if len(publisher.topics) != 0 {
		t.Fatalf("no event expected when the turn was not saved")
	}
}

func TestHandleTurnPublishesTurnEvent(t *testing.T) {
	t.Parallel()

	publisher := &recordingPublisher{err: errors.New("broker down")}
	o := newTestOrchestrator(t, newFakeStore(), newFakeRegistry(route(contractx.SpecialistFAQ), answering(contractx.SpecialistFAQ, "ok")), &fakeTools{}, WithPublisher(publisher))

	if _, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-pub", Text: "hello"}); err != nil {
		t.Fatalf("publish failure must not fail the turn: %v", err)
	}
	if len(publisher.events) != 1 || publisher.topics[0] != eventsx.TopicTurnCompleted {
		t.Fatalf("unexpected events %v", publisher.topics)
	}
	e := publisher.events[0]
	if e.ConversationID != "c-pub" || e.Status != string(contractx.TurnCompleted) || e.Specialist != "faq" || e.Iterations != 1 {
		t.Fatalf("unexpected event %#v", e)
	}
}

func TestHandleTurnSerializesConversation(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var inFlight, maxInFlight atomic.Int32
	faqSpec := &fakeSpecialist{kind: contractx.SpecialistFAQ, act: func(conv *statex.Conversation) (contractx.Decision, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		entered <- struct{}{}
		<-release
		return contractx.Answer("answer to " + conv.LastUserMessage()), nil
	}}
	store := newFakeStore()
	o := newTestOrchestrator(t, store, newFakeRegistry(route(contractx.SpecialistFAQ), faqSpec), &fakeTools{})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	run := func(text string) {
		defer wg.Done()
		_, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-serial", Text: text})
		errs <- err
	}

	wg.Add(1)
	go run("first")
	<-entered

	wg.Add(1)
	go run("second")
	select {
	case <-entered:
		t.Fatalf("second turn started while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("HandleTurn() error = %v", err)
		}
	}
	if maxInFlight.Load() != 1 {
		t.Fatalf("expected at most one turn in flight, got %d", maxInFlight.Load())
	}

	conv := mustLoad(t, store, "c-serial")
	messages := conv.UserMessages()
	if len(messages) != 2 || messages[0] != "second" || messages[1] != "first" {
		t.Fatalf("unexpected user messages %v", messages)
	}
	if got := len(conv.Turns); got != 4 {
		t.Fatalf("expected 4 turns, got %d", got)
	}
}

func TestHandleTurnCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	locker := statex.NewLocker()
	unlock, err := locker.Lock(context.Background(), "c-wait")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	o := newTestOrchestrator(t, newFakeStore(), newFakeRegistry(route(contractx.SpecialistFAQ), answering(contractx.SpecialistFAQ, "ok")), &fakeTools{}, WithLocker(locker))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := o.HandleTurn(ctx, TurnRequest{ConversationID: "c-wait", Text: "hello"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func newClinic(t *testing.T) (*Orchestrator, *statex.MemoryStore, *schedule.Service) {
	t.Helper()
	catalog, err := schedule.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	clock := func() time.Time { return testNow }
	svc := schedule.NewService(schedule.NewMemoryStore(), catalog, schedule.WithClock(clock))
	kb, err := faq.Default()
	if err != nil {
		t.Fatalf("faq.Default() error = %v", err)
	}
	tools, err := toolx.New(svc, kb)
	if err != nil {
		t.Fatalf("tool.New() error = %v", err)
	}
	deps := specialist.Deps{Catalog: catalog, Now: clock}
	registry, err := specialist.NewRegistry(supervisor.NewRules(), specialist.Defaults(deps)...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	store := statex.NewMemoryStore()
	return newTestOrchestrator(t, store, registry, tools), store, svc
}

func TestHandleTurnBookingEndToEnd(t *testing.T) {
	t.Parallel()

	o, store, svc := newClinic(t)
	resp, err := o.HandleTurn(context.Background(), TurnRequest{
		ConversationID: "c-book",
		PatientID:      "1234567",
		Text:           "Book me with Dr. Lee tomorrow at 3pm",
	})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnCompleted {
		t.Fatalf("unexpected status %s", resp.Status)
	}

	upcoming, err := svc.Upcoming(context.Background(), "1234567")
	if err != nil || len(upcoming) != 1 {
		t.Fatalf("Upcoming() = %v, %v", upcoming, err)
	}
	want := "Booked with Dr. Lee tomorrow at 3pm, confirmation #" + upcoming[0].Appointment.ID
	if resp.Answer != want {
		t.Fatalf("answer = %q, want %q", resp.Answer, want)
	}

	conv := mustLoad(t, store, "c-book")
	tools := conv.ToolTurns()
	if len(tools) != 1 || tools[0].Tool != toolx.ToolCreateBooking || tools[0].Failed {
		t.Fatalf("unexpected tool turns %#v", tools)
	}
	if conv.LastSpecialist != string(contractx.SpecialistBooking) {
		t.Fatalf("last specialist = %q", conv.LastSpecialist)
	}
}

func TestHandleTurnCancelWithoutIDAsks(t *testing.T) {
	t.Parallel()

	o, store, _ := newClinic(t)
	resp, err := o.HandleTurn(context.Background(), TurnRequest{ConversationID: "c-cancel", Text: "Cancel my appointment"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Status != contractx.TurnCompleted || !strings.Contains(resp.Answer, "confirmation number") {
		t.Fatalf("unexpected response %#v", resp)
	}
	if conv := mustLoad(t, store, "c-cancel"); len(conv.ToolTurns()) != 0 {
		t.Fatalf("no tool call expected")
	}
}

func TestHandleTurnBookThenCancelAcrossTurns(t *testing.T) {
	t.Parallel()

	o, _, svc := newClinic(t)
	ctx := context.Background()
	if _, err := o.HandleTurn(ctx, TurnRequest{ConversationID: "c-flow", PatientID: "1234567", Text: "Book me with Dr. Lee tomorrow at 3pm"}); err != nil {
		t.Fatalf("HandleTurn(book) error = %v", err)
	}

	resp, err := o.HandleTurn(ctx, TurnRequest{ConversationID: "c-flow", Text: "Actually, please cancel it"})
	if err != nil {
		t.Fatalf("HandleTurn(cancel) error = %v", err)
	}
	if !strings.HasSuffix(resp.Answer, "is cancelled.") {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
	upcoming, err := svc.Upcoming(ctx, "1234567")
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(upcoming) != 0 {
		t.Fatalf("expected no upcoming appointments, got %d", len(upcoming))
	}
}

func TestHandleTurnConfirmationNumberIsNotAPatientID(t *testing.T) {
	t.Parallel()

	o, store, svc := newClinic(t)
	ctx := context.Background()
	if _, err := o.HandleTurn(ctx, TurnRequest{ConversationID: "c-ids", Text: "Please cancel #12345678-90ab-4cde-8f01-23456789abcd"}); err != nil {
		t.Fatalf("HandleTurn(cancel) error = %v", err)
	}

	resp, err := o.HandleTurn(ctx, TurnRequest{ConversationID: "c-ids", Text: "Book me with Dr. Lee tomorrow at 3pm"})
	if err != nil {
		t.Fatalf("HandleTurn(book) error = %v", err)
	}
	if !strings.Contains(resp.Answer, "patient ID") {
		t.Fatalf("expected a patient ID question, got %q", resp.Answer)
	}
	for _, turn := range mustLoad(t, store, "c-ids").ToolTurns() {
		if turn.Tool == toolx.ToolCreateBooking {
			t.Fatalf("create_booking issued without a patient id: %#v", turn)
		}
	}
	upcoming, err := svc.Upcoming(ctx, "12345678")
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(upcoming) != 0 {
		t.Fatalf("booked %d appointments under a confirmation number", len(upcoming))
	}
}
