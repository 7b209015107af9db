package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fableguard/fableguard/internal/action"
	"github.com/fableguard/fableguard/internal/catalog"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/intake"
	"github.com/fableguard/fableguard/internal/session"
	"github.com/fableguard/fableguard/internal/storage"
)

// memStore is an in-memory SessionStore and ResultStore. It can be
// scripted to lose a number of optimistic commits to exercise the
// retry path.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]session.Session
	results   map[string]action.Result
	conflicts int
	commits   int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]session.Session),
		results:  make(map[string]action.Result),
	}
}

func (m *memStore) PutSession(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return session.Session{}, storage.ErrNotFound
	}
	return s, nil
}

func (m *memStore) CommitSession(_ context.Context, s session.Session, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[s.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		return storage.ErrVersionConflict
	}
	if current.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	m.sessions[s.ID] = s
	m.commits++
	return nil
}

func (m *memStore) ListSessions(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) PutResult(_ context.Context, r action.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.SessionID + "/" + r.IdempotencyKey
	if _, ok := m.results[key]; ok {
		return nil
	}
	m.results[key] = r
	return nil
}

func (m *memStore) GetResult(_ context.Context, sessionID, idempotencyKey string) (action.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[sessionID+"/"+idempotencyKey]
	if !ok {
		return action.Result{}, storage.ErrNotFound
	}
	return r, nil
}

// slowRenderer blocks until its context expires.
type slowRenderer struct{}

func (slowRenderer) Render(ctx context.Context, _ action.Result, _ []string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// flakyRenderer fails a scripted number of calls before succeeding.
type flakyRenderer struct {
	failures int
	calls    int
}

func (r *flakyRenderer) Render(_ context.Context, _ action.Result, _ []string) (string, error) {
	r.calls++
	if r.calls <= r.failures {
		return "", apperrors.New(apperrors.CodeUpstreamUnavailable, "renderer busy")
	}
	return "the torchlight gutters in the draft", nil
}

func testSession(t *testing.T, characters ...session.Character) session.Session {
	t.Helper()
	if len(characters) == 0 {
		characters = []session.Character{playerCharacter("pc-1")}
	}
	return session.Session{
		ID:         "sess-1",
		WorldID:    "world-1",
		Phase:      session.PhaseExploring,
		Seed:       42,
		Version:    1,
		Characters: characters,
	}
}

func playerCharacter(id string) session.Character {
	return session.Character{
		ID:         id,
		Name:       id,
		Controller: session.ControllerPlayer,
		Attributes: map[session.Attribute]int{session.AttrAgility: 14, session.AttrStrength: 12},
		Level:      1,
		Health:     20,
		MaxHealth:  20,
	}
}

func hostileCharacter(id string, health int) session.Character {
	return session.Character{
		ID:         id,
		Name:       id,
		Controller: session.ControllerNPC,
		Hostile:    true,
		Attributes: map[session.Attribute]int{session.AttrAgility: 8},
		Level:      1,
		Health:     health,
		MaxHealth:  health,
	}
}

func testProcessor(t *testing.T, store *memStore, opts ...ProcessorOption) *Processor {
	t.Helper()
	cat, err := catalog.New("v1", []catalog.ItemType{
		{ID: "iron_sword", Name: "Iron Sword", Category: "weapon", Equippable: true, DamageDie: 6},
		{ID: "healing_draught", Name: "Healing Draught", Category: "consumable", Usable: true, HealAmount: 8, StackLimit: 5},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return NewProcessor(store, store, cat, opts...)
}

func TestProcessCommitsAndStoresResult(t *testing.T) {
	store := newMemStore()
	sess := testSession(t)
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindMove,
		IdempotencyKey: "key-1",
		Destination:    "the old mill",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Rejected() {
		t.Fatalf("Process() rejected: %+v", result.Rejection)
	}
	if result.Version != 2 {
		t.Errorf("result version = %d, want 2", result.Version)
	}
	if dest, ok := result.Fact("destination"); !ok || dest != "the old mill" {
		t.Errorf("destination fact = %q, %v", dest, ok)
	}

	committed, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if committed.Version != 2 {
		t.Errorf("committed version = %d, want 2", committed.Version)
	}
	if _, err := store.GetResult(context.Background(), "sess-1", "key-1"); err != nil {
		t.Errorf("GetResult() error = %v, want stored result", err)
	}
}

func TestProcessIdempotentReplay(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	req := action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindObserve,
		IdempotencyKey: "key-1",
	}

	first, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	second, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if second.Version != first.Version {
		t.Errorf("replay version = %d, want %d", second.Version, first.Version)
	}
	committed, _ := store.GetSession(context.Background(), "sess-1")
	if committed.Version != 2 {
		t.Errorf("session version after replay = %d, want 2 (state must not advance twice)", committed.Version)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want 1", store.commits)
	}
}

func TestProcessRejectsUnknownSession(t *testing.T) {
	p := testProcessor(t, newMemStore())

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "missing",
		ActorID:        "pc-1",
		Kind:           action.KindObserve,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Rejected() {
		t.Fatalf("Process() outcome = %v, want rejected", result.Outcome)
	}
	if result.Rejection.Code != string(apperrors.CodeNotFound) {
		t.Errorf("rejection code = %q, want %q", result.Rejection.Code, apperrors.CodeNotFound)
	}
}

func TestProcessAttackWhileExploringRejected(t *testing.T) {
	store := newMemStore()
	sess := testSession(t, playerCharacter("pc-1"), hostileCharacter("npc-1", 10))
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindAttack,
		TargetID:       "npc-1",
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Rejected() {
		t.Fatalf("attack while exploring outcome = %v, want rejected", result.Outcome)
	}
	if result.Rejection.Code != string(apperrors.CodePhaseMismatch) {
		t.Errorf("rejection code = %q, want %q", result.Rejection.Code, apperrors.CodePhaseMismatch)
	}
	if result.Version != 1 {
		t.Errorf("rejection version = %d, want unchanged 1", result.Version)
	}

	committed, _ := store.GetSession(context.Background(), "sess-1")
	if committed.Version != 1 {
		t.Errorf("session version after rejection = %d, want 1", committed.Version)
	}
}

func TestProcessEndedSessionRejected(t *testing.T) {
	store := newMemStore()
	sess := testSession(t)
	sess.Phase = session.PhaseEnded
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindObserve,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Rejected() || result.Rejection.Code != string(apperrors.CodeSessionEnded) {
		t.Fatalf("result = %+v, want SESSION_ENDED rejection", result)
	}
}

func TestProcessRetriesVersionConflict(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	store.conflicts = 2
	p := testProcessor(t, store, WithCommitRetries(5, time.Millisecond))

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindObserve,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Rejected() {
		t.Fatalf("Process() rejected: %+v", result.Rejection)
	}
	if result.Version != 2 {
		t.Errorf("result version = %d, want 2", result.Version)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want exactly 1 after retries", store.commits)
	}
}

func TestProcessSkillCheckHiddenUntilConfirmed(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	checkResult, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindSkillCheck,
		Attribute:      "wisdom",
		Difficulty:     "medium",
		IdempotencyKey: "key-check",
	})
	if err != nil {
		t.Fatalf("skill check Process() error = %v", err)
	}
	if checkResult.Rejected() {
		t.Fatalf("skill check rejected: %+v", checkResult.Rejection)
	}
	if len(checkResult.Rolls) != 0 {
		t.Errorf("pending check exposed rolls %v, want hidden", checkResult.Rolls)
	}

	committed, _ := store.GetSession(context.Background(), "sess-1")
	if committed.Phase != session.PhaseSkillCheckPending {
		t.Fatalf("phase = %v, want skill check pending", committed.Phase)
	}
	if committed.Pending == nil {
		t.Fatal("session pending check = nil, want stored check")
	}

	confirmResult, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindConfirmCheck,
		IdempotencyKey: "key-confirm",
	})
	if err != nil {
		t.Fatalf("confirm Process() error = %v", err)
	}
	if confirmResult.Rejected() {
		t.Fatalf("confirm rejected: %+v", confirmResult.Rejection)
	}
	if len(confirmResult.Rolls) == 0 {
		t.Error("confirm revealed no rolls, want the pre-rolled values")
	}
	if confirmResult.Rolls[0] != committed.Pending.BaseRoll {
		t.Errorf("revealed roll = %d, want pre-rolled %d", confirmResult.Rolls[0], committed.Pending.BaseRoll)
	}

	after, _ := store.GetSession(context.Background(), "sess-1")
	if after.Phase != session.PhaseExploring || after.Pending != nil {
		t.Errorf("after confirm: phase = %v pending = %v, want exploring with no pending", after.Phase, after.Pending)
	}
}

func TestProcessEngageStartsCombatAndEnforcesTurns(t *testing.T) {
	store := newMemStore()
	// The hostile's agility (8) is below the player's (14), so the
	// player acts first.
	sess := testSession(t, playerCharacter("pc-1"), hostileCharacter("npc-1", 10))
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	engage, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindEngage,
		TargetID:       "npc-1",
		IdempotencyKey: "key-engage",
	})
	if err != nil {
		t.Fatalf("engage Process() error = %v", err)
	}
	if engage.Rejected() {
		t.Fatalf("engage rejected: %+v", engage.Rejection)
	}

	committed, _ := store.GetSession(context.Background(), "sess-1")
	if committed.Phase != session.PhaseCombat {
		t.Fatalf("phase = %v, want combat", committed.Phase)
	}
	if committed.Encounter == nil {
		t.Fatal("encounter = nil, want started encounter")
	}
	if current, _ := committed.Encounter.CurrentActor(); current != "pc-1" {
		t.Errorf("current actor = %q, want pc-1 (higher agility)", current)
	}

	// The hostile cannot act out of turn.
	outOfTurn, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "npc-1",
		Kind:           action.KindAttack,
		TargetID:       "pc-1",
		IdempotencyKey: "key-oot",
	})
	if err != nil {
		t.Fatalf("out-of-turn Process() error = %v", err)
	}
	if !outOfTurn.Rejected() || outOfTurn.Rejection.Code != string(apperrors.CodeNotYourTurn) {
		t.Fatalf("out-of-turn result = %+v, want NOT_YOUR_TURN rejection", outOfTurn)
	}
}

func TestProcessNPCTurnAutoResolves(t *testing.T) {
	store := newMemStore()
	// The hostile's agility (18) beats the player's (14), so initiative
	// puts the NPC first.
	npc := hostileCharacter("npc-1", 10)
	npc.Attributes[session.AttrAgility] = 18
	sess := testSession(t, playerCharacter("pc-1"), npc)
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)
	ctx := context.Background()

	engage, err := p.Process(ctx, action.Request{
		SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindEngage,
		TargetID: "npc-1", IdempotencyKey: "key-engage",
	})
	if err != nil {
		t.Fatalf("engage Process() error = %v", err)
	}
	if engage.Rejected() {
		t.Fatalf("engage rejected: %+v", engage.Rejection)
	}
	if first, _ := engage.Fact("first_actor"); first != "npc-1" {
		t.Fatalf("first actor = %q, want npc-1", first)
	}

	// The NPC's opening turn resolves without any player submission and
	// leaves its own durable result behind.
	committed, _ := store.GetSession(ctx, "sess-1")
	if committed.Phase != session.PhaseCombat {
		t.Fatalf("phase = %v, want combat", committed.Phase)
	}
	if current, _ := committed.Encounter.CurrentActor(); current != "pc-1" {
		t.Fatalf("current actor = %q, want pc-1 after the NPC's auto-resolved turn", current)
	}
	if _, err := store.GetResult(ctx, "sess-1", "npc-turn:npc-1:2"); err != nil {
		t.Errorf("GetResult(npc turn) error = %v, want stored NPC result", err)
	}

	// The player's attack is now admitted, not rejected out of turn.
	attack, err := p.Process(ctx, action.Request{
		SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindAttack,
		TargetID: "npc-1", IdempotencyKey: "key-attack",
	})
	if err != nil {
		t.Fatalf("attack Process() error = %v", err)
	}
	if attack.Rejected() {
		t.Fatalf("attack rejected: %+v", attack.Rejection)
	}
}

func TestProcessCombatToVictory(t *testing.T) {
	store := newMemStore()
	// Strength 1 keeps the hostile's auto-resolved counterattacks
	// harmless, so the fight can only end in victory.
	npc := hostileCharacter("npc-1", 1)
	npc.Attributes[session.AttrStrength] = 1
	sess := testSession(t, playerCharacter("pc-1"), npc)
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)
	ctx := context.Background()

	if _, err := p.Process(ctx, action.Request{
		SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindEngage,
		TargetID: "npc-1", IdempotencyKey: "key-engage",
	}); err != nil {
		t.Fatalf("engage error = %v", err)
	}

	// With one hit point the hostile falls on the first landed blow.
	// The hostile's turns auto-resolve, so the player holds the turn
	// whenever a submission arrives.
	for i := 0; i < 40; i++ {
		committed, _ := store.GetSession(ctx, "sess-1")
		if committed.Phase == session.PhaseExploring {
			break
		}
		result, err := p.Process(ctx, action.Request{
			SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindAttack,
			TargetID: "npc-1", IdempotencyKey: fmt.Sprintf("key-%d", i),
		})
		if err != nil {
			t.Fatalf("turn %d Process() error = %v", i, err)
		}
		if result.Rejected() {
			t.Fatalf("turn %d rejected: %+v", i, result.Rejection)
		}
	}

	final, _ := store.GetSession(ctx, "sess-1")
	if final.Phase != session.PhaseExploring {
		t.Fatalf("phase after combat = %v, want exploring", final.Phase)
	}
	if final.Encounter != nil {
		t.Fatalf("encounter = %+v, want cleared outside combat", final.Encounter)
	}
	target, _ := final.Character("npc-1")
	if target.Alive() {
		t.Errorf("hostile health = %d, want defeated", target.Health)
	}
	victor, _ := final.Character("pc-1")
	if victor.XP == 0 && victor.Level == 1 {
		t.Error("victor gained no XP from the victory")
	}
}

func TestProcessQuestResolutionGrantsRewards(t *testing.T) {
	store := newMemStore()
	npc := hostileCharacter("npc-1", 1)
	npc.Attributes[session.AttrStrength] = 1
	sess := testSession(t, playerCharacter("pc-1"), npc)
	sess.Quest = session.QuestState{
		ActiveQuestID: "q-1",
		Title:         "Clear the Marsh Road",
		Objectives:    []session.Objective{{Description: "Drive off the wolf"}},
		Rewards:       session.Rewards{XP: 150, Currency: 25, ItemIDs: []string{"healing_draught"}},
	}
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)
	ctx := context.Background()

	if _, err := p.Process(ctx, action.Request{
		SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindEngage,
		TargetID: "npc-1", IdempotencyKey: "key-engage",
	}); err != nil {
		t.Fatalf("engage error = %v", err)
	}

	for i := 0; i < 40; i++ {
		committed, _ := store.GetSession(ctx, "sess-1")
		if committed.Phase != session.PhaseCombat {
			break
		}
		if _, err := p.Process(ctx, action.Request{
			SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindAttack,
			TargetID: "npc-1", IdempotencyKey: fmt.Sprintf("key-%d", i),
		}); err != nil {
			t.Fatalf("turn %d Process() error = %v", i, err)
		}
	}

	won, _ := store.GetSession(ctx, "sess-1")
	if won.Phase != session.PhaseQuestResolution {
		t.Fatalf("phase after final objective = %v, want quest resolution", won.Phase)
	}
	if !won.Quest.Complete() {
		t.Fatal("quest objectives not all met after victory")
	}

	claim, err := p.Process(ctx, action.Request{
		SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindConverse,
		IdempotencyKey: "key-claim",
	})
	if err != nil {
		t.Fatalf("claim Process() error = %v", err)
	}
	if claim.Rejected() {
		t.Fatalf("claim rejected: %+v", claim.Rejection)
	}

	final, _ := store.GetSession(ctx, "sess-1")
	if final.Phase != session.PhaseExploring {
		t.Errorf("phase after claim = %v, want exploring", final.Phase)
	}
	if !final.Quest.Flags["rewards_claimed"] {
		t.Error("rewards_claimed flag not set")
	}
	hero, _ := final.Character("pc-1")
	if hero.Currency != 25 {
		t.Errorf("currency = %d, want 25", hero.Currency)
	}
	if hero.Inventory.Quantity("healing_draught") != 1 {
		t.Errorf("reward item quantity = %d, want 1", hero.Inventory.Quantity("healing_draught"))
	}
}

func TestProcessQuestClaimGrantsOnce(t *testing.T) {
	store := newMemStore()
	sess := testSession(t, playerCharacter("pc-1"))
	sess.Phase = session.PhaseQuestResolution
	sess.Quest = session.QuestState{
		ActiveQuestID: "q-1",
		Title:         "Clear the Marsh Road",
		Objectives:    []session.Objective{{Description: "Drive off the wolf", Met: true}},
		Flags:         map[string]bool{"rewards_claimed": true},
		Rewards:       session.Rewards{XP: 150, Currency: 25, ItemIDs: []string{"healing_draught"}},
	}
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	claim, err := p.Process(context.Background(), action.Request{
		SessionID: "sess-1", ActorID: "pc-1", Kind: action.KindConverse,
		IdempotencyKey: "key-reclaim",
	})
	if err != nil {
		t.Fatalf("claim Process() error = %v", err)
	}
	if claim.Rejected() {
		t.Fatalf("claim rejected: %+v", claim.Rejection)
	}

	// Already-claimed rewards must not grant again.
	final, _ := store.GetSession(context.Background(), "sess-1")
	if final.Phase != session.PhaseExploring {
		t.Errorf("phase after repeat claim = %v, want exploring", final.Phase)
	}
	hero, _ := final.Character("pc-1")
	if hero.XP != 0 || hero.Currency != 0 {
		t.Errorf("XP/currency = %d/%d, want 0/0 on a repeat claim", hero.XP, hero.Currency)
	}
	if qty := hero.Inventory.Quantity("healing_draught"); qty != 0 {
		t.Errorf("reward item quantity = %d, want 0 on a repeat claim", qty)
	}
}

func TestProcessNarrationRetriesBeforeSucceeding(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	renderer := &flakyRenderer{failures: 2}
	p := testProcessor(t, store,
		WithRenderer(renderer),
		WithCommitRetries(5, time.Millisecond))

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindObserve,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v, want retries to absorb transient renderer failures", err)
	}
	if narration, ok := result.Fact("narration"); !ok || narration == "" {
		t.Error("no narration fact after the renderer recovered")
	}
	if renderer.calls != 3 {
		t.Errorf("renderer calls = %d, want 3 (two failures plus the recovery)", renderer.calls)
	}
}

func TestProcessNarrationTimeoutSurfacesUpstreamError(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store,
		WithRenderer(slowRenderer{}),
		WithUpstreamTimeout(10*time.Millisecond))

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindObserve,
		IdempotencyKey: "key-1",
	})
	if !apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable) {
		t.Fatalf("Process() error = %v, want UPSTREAM_UNAVAILABLE", err)
	}
	if result.Rejected() {
		t.Fatalf("result rejected despite committed state: %+v", result.Rejection)
	}

	// The commit and the stored result survive the narration failure.
	committed, _ := store.GetSession(context.Background(), "sess-1")
	if committed.Version != 2 {
		t.Errorf("session version = %d, want 2", committed.Version)
	}
	if _, gerr := store.GetResult(context.Background(), "sess-1", "key-1"); gerr != nil {
		t.Errorf("GetResult() error = %v, want stored result", gerr)
	}
}

func TestProcessSerializesPerSession(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store, WithCommitRetries(20, time.Millisecond))

	const concurrent = 8
	var wg sync.WaitGroup
	errs := make([]error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Process(context.Background(), action.Request{
				SessionID:      "sess-1",
				ActorID:        "pc-1",
				Kind:           action.KindObserve,
				IdempotencyKey: fmt.Sprintf("key-%d", i),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Process() %d error = %v", i, err)
		}
	}
	committed, _ := store.GetSession(context.Background(), "sess-1")
	if committed.Version != 1+concurrent {
		t.Errorf("session version = %d, want %d (every action committed exactly once)", committed.Version, 1+concurrent)
	}
}

func TestPoolProcessesInOrderAndAcks(t *testing.T) {
	store := newMemStore()
	if err := store.PutSession(context.Background(), testSession(t)); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	p := testProcessor(t, store)

	queue := intake.NewMemoryQueue(16)
	const actions = 5
	for i := 0; i < actions; i++ {
		err := queue.Enqueue(context.Background(), action.Request{
			SessionID:      "sess-1",
			ActorID:        "pc-1",
			Kind:           action.KindObserve,
			IdempotencyKey: fmt.Sprintf("key-%d", i),
		})
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(queue, p, 4)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		committed, _ := store.GetSession(context.Background(), "sess-1")
		if committed.Version == 1+actions {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pool did not process all actions, version = %d", committed.Version)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}

	// FIFO per session: result versions follow enqueue order.
	for i := 0; i < actions; i++ {
		result, err := store.GetResult(context.Background(), "sess-1", fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatalf("GetResult(key-%d) error = %v", i, err)
		}
		if want := uint64(2 + i); result.Version != want {
			t.Errorf("result key-%d version = %d, want %d", i, result.Version, want)
		}
	}
}

func TestProcessValidationRejection(t *testing.T) {
	p := testProcessor(t, newMemStore())

	result, err := p.Process(context.Background(), action.Request{
		SessionID:      "sess-1",
		ActorID:        "pc-1",
		Kind:           action.KindAttack,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Rejected() || result.Rejection.Code != string(apperrors.CodeValidationTargetMissing) {
		t.Fatalf("result = %+v, want target-missing rejection", result)
	}
}
