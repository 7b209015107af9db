// Package pipeline turns queued action requests into committed results.
//
// Each request runs through the same stages: idempotency replay check,
// session lookup, phase and turn admission, rules resolution, atomic
// apply, optimistic commit, durable result recording, then narration.
// A keyed mutex guarantees at most one concurrent resolution per
// session, and the worker pool routes each session to a single worker,
// so results per session are emitted in admission order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fableguard/fableguard/internal/action"
	"github.com/fableguard/fableguard/internal/catalog"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/id"
	"github.com/fableguard/fableguard/internal/memory"
	"github.com/fableguard/fableguard/internal/narration"
	"github.com/fableguard/fableguard/internal/random"
	"github.com/fableguard/fableguard/internal/rules"
	"github.com/fableguard/fableguard/internal/scheduler"
	"github.com/fableguard/fableguard/internal/session"
	"github.com/fableguard/fableguard/internal/storage"
	"github.com/fableguard/fableguard/internal/telemetry"
)

const (
	defaultCommitRetries   = 5
	defaultRetryBase       = 50 * time.Millisecond
	defaultUpstreamTimeout = 10 * time.Second

	// xpVictoryAward is the XP granted per defeated hostile when an
	// encounter resolves in the party's favor.
	xpVictoryAward = 100

	// narrationRetries bounds renderer attempts before the failure
	// surfaces as an upstream error.
	narrationRetries = 2

	// maxNPCTurnsPerAction caps consecutive auto-resolved NPC turns
	// after one committed player action.
	maxNPCTurnsPerAction = 16
)

// Processor resolves one action request end to end.
type Processor struct {
	sessions storage.SessionStore
	results  storage.ResultStore
	catalog  *catalog.Catalog
	emitter  *telemetry.Emitter
	renderer narration.Renderer
	memories memory.Store

	clock           func() time.Time
	idGenerator     func() (string, error)
	tracer          trace.Tracer
	locks           *keyedMutex
	commitRetries   uint64
	retryBase       time.Duration
	upstreamTimeout time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRenderer sets the narration renderer. Nil disables narration.
func WithRenderer(renderer narration.Renderer) ProcessorOption {
	return func(p *Processor) {
		p.renderer = renderer
	}
}

// WithMemoryStore sets the narrative memory store.
func WithMemoryStore(store memory.Store) ProcessorOption {
	return func(p *Processor) {
		p.memories = store
	}
}

// WithEmitter sets the telemetry emitter.
func WithEmitter(emitter *telemetry.Emitter) ProcessorOption {
	return func(p *Processor) {
		p.emitter = emitter
	}
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.clock = clock
	}
}

// WithUpstreamTimeout bounds each narration or memory call.
func WithUpstreamTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.upstreamTimeout = timeout
	}
}

// WithCommitRetries bounds optimistic-commit retry attempts.
func WithCommitRetries(retries uint64, base time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.commitRetries = retries
		p.retryBase = base
	}
}

// NewProcessor wires a processor over its collaborators.
func NewProcessor(sessions storage.SessionStore, results storage.ResultStore, cat *catalog.Catalog, opts ...ProcessorOption) *Processor {
	p := &Processor{
		sessions:        sessions,
		results:         results,
		catalog:         cat,
		clock:           time.Now,
		idGenerator:     id.NewID,
		tracer:          otel.Tracer("fableguard/pipeline"),
		locks:           newKeyedMutex(),
		commitRetries:   defaultCommitRetries,
		retryBase:       defaultRetryBase,
		upstreamTimeout: defaultUpstreamTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process resolves one request and returns its durable result.
//
// The returned error is non-nil only for infrastructure failures (the
// result could not be computed or recorded, so the delivery should not
// be acked) and for upstream narration failures after the result is
// already committed; rejections are encoded in the result itself.
func (p *Processor) Process(ctx context.Context, req action.Request) (action.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("session.id", req.SessionID),
			attribute.String("action.kind", string(req.Kind)),
		))
	defer span.End()

	if err := req.Validate(); err != nil {
		return p.reject(req, 0, err), nil
	}

	p.locks.Lock(req.SessionID)
	defer p.locks.Unlock(req.SessionID)

	// Idempotent replay: a key we already processed returns the original
	// result without touching state.
	stored, err := p.results.GetResult(ctx, req.SessionID, req.IdempotencyKey)
	if err == nil {
		span.SetAttributes(attribute.Bool("pipeline.replay", true))
		return stored, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return action.Result{}, fmt.Errorf("check idempotency key: %w", err)
	}

	result, err := p.resolveAndCommit(ctx, req)
	if err != nil {
		return action.Result{}, err
	}

	if err := p.results.PutResult(ctx, result); err != nil {
		return action.Result{}, fmt.Errorf("record result: %w", err)
	}
	p.emitResult(ctx, result)

	if result.Rejected() {
		return result, nil
	}
	p.driveNPCTurns(ctx, req.SessionID)
	return p.narrate(ctx, result)
}

// driveNPCTurns auto-resolves turns for AI-controlled combatants until
// the turn pointer reaches a player character or combat ends. Each NPC
// turn commits and records its own result under a version-derived
// idempotency key, so a redelivered player action never replays them.
func (p *Processor) driveNPCTurns(ctx context.Context, sessionID string) {
	for i := 0; i < maxNPCTurnsPerAction; i++ {
		sess, err := p.sessions.GetSession(ctx, sessionID)
		if err != nil || sess.Phase != session.PhaseCombat {
			return
		}
		actorID, ok := sess.Encounter.CurrentActor()
		if !ok {
			return
		}
		actor, ok := sess.Character(actorID)
		if !ok || actor.Controller != session.ControllerNPC {
			return
		}

		result, err := p.resolveAndCommit(ctx, npcAction(sess, actor))
		if err != nil || result.Rejected() {
			return
		}
		if err := p.results.PutResult(ctx, result); err != nil {
			return
		}
		p.emitResult(ctx, result)
	}
}

// npcAction picks the NPC's move: attack the first living opponent, or
// pass the turn when none remains.
func npcAction(sess session.Session, actor session.Character) action.Request {
	req := action.Request{
		SessionID:      sess.ID,
		ActorID:        actor.ID,
		Kind:           action.KindEndTurn,
		IdempotencyKey: fmt.Sprintf("npc-turn:%s:%d", actor.ID, sess.Version),
	}
	for _, c := range sess.Characters {
		if c.Alive() && c.Hostile != actor.Hostile {
			req.Kind = action.KindAttack
			req.TargetID = c.ID
			break
		}
	}
	return req
}

// resolveAndCommit runs the resolution stages, retrying the whole
// load-resolve-apply-commit cycle when the optimistic commit loses a
// version race.
func (p *Processor) resolveAndCommit(ctx context.Context, req action.Request) (action.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.commit")
	defer span.End()

	var result action.Result
	backoff := retry.WithMaxRetries(p.commitRetries, retry.NewFibonacci(p.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		sess, err := p.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				result = p.reject(req, 0, err)
				return nil
			}
			return fmt.Errorf("load session: %w", err)
		}

		if err := sess.Phase.CheckKind(req.Kind); err != nil {
			result = p.reject(req, sess.Version, err)
			return nil
		}
		if sess.Phase == session.PhaseCombat && req.Kind != action.KindEndSession {
			if err := scheduler.CheckEligible(sess.Encounter, req.ActorID); err != nil {
				result = p.reject(req, sess.Version, err)
				return nil
			}
		}
		actor, ok := sess.Character(req.ActorID)
		if !ok {
			result = p.reject(req, sess.Version, apperrors.New(apperrors.CodeCharacterNotFound, "actor is not a session character").
				WithMetadata("character_id", req.ActorID))
			return nil
		}

		// The seed derives from the session seed and version, so a retry
		// of the same version re-draws the same values.
		src := random.NewSource(sess.Seed + int64(sess.Version))

		resolution, rerr := p.resolve(sess, actor, req, src)
		if rerr != nil {
			result = p.reject(req, sess.Version, rerr)
			return nil
		}

		next, aerr := session.Apply(sess, resolution.delta, p.clock)
		if aerr != nil {
			result = p.reject(req, sess.Version, aerr)
			return nil
		}

		if cerr := p.sessions.CommitSession(ctx, next, sess.Version); cerr != nil {
			if errors.Is(cerr, storage.ErrVersionConflict) {
				return retry.RetryableError(cerr)
			}
			return fmt.Errorf("commit session: %w", cerr)
		}

		result = action.Result{
			SessionID:      req.SessionID,
			ActorID:        req.ActorID,
			IdempotencyKey: req.IdempotencyKey,
			Kind:           req.Kind,
			Outcome:        resolution.outcome,
			Version:        next.Version,
			Seed:           src.Seed(),
			Rolls:          resolution.rolls,
			Facts:          resolution.facts,
			ProcessedAt:    p.clock().UTC(),
		}
		return nil
	})
	if err != nil {
		return action.Result{}, err
	}
	return result, nil
}

// resolution carries everything one resolved action contributes.
type resolution struct {
	delta   session.Delta
	outcome action.OutcomeTag
	rolls   []int
	facts   []action.Fact
}

// resolve computes the delta for an admitted request. A returned error
// is a typed rejection; state is never touched here.
func (p *Processor) resolve(sess session.Session, actor session.Character, req action.Request, src *random.Source) (resolution, error) {
	switch req.Kind {
	case action.KindMove:
		return p.resolveAmbient(sess, req, src, []action.Fact{
			{Name: "destination", Value: req.Destination},
		})
	case action.KindConverse, action.KindObserve:
		if sess.Phase == session.PhaseQuestResolution {
			return p.resolveQuestClaim(sess, req)
		}
		return p.resolveAmbient(sess, req, src, nil)
	case action.KindEngage:
		return p.resolveEngage(sess, req)
	case action.KindAttack:
		return p.resolveAttack(sess, actor, req, src)
	case action.KindUseItem:
		return p.resolveUseItem(sess, actor, req, src)
	case action.KindEquipItem:
		changes, err := rules.EquipItem(actor, req.ItemTypeID, p.catalog)
		if err != nil {
			return resolution{}, err
		}
		return resolution{
			delta:   session.Delta{Inventory: changes},
			outcome: action.OutcomeSuccess,
			facts:   []action.Fact{{Name: "item_type", Value: req.ItemTypeID}, {Name: "equipped", Value: "true"}},
		}, nil
	case action.KindDropItem:
		changes, err := rules.DropItem(actor, req.ItemTypeID, req.Quantity, p.catalog)
		if err != nil {
			return resolution{}, err
		}
		return resolution{
			delta:   session.Delta{Inventory: changes},
			outcome: action.OutcomeSuccess,
			facts:   []action.Fact{{Name: "item_type", Value: req.ItemTypeID}},
		}, nil
	case action.KindPickUpItem:
		changes, err := rules.PickUpItem(actor, req.ItemTypeID, req.Quantity, p.catalog)
		if err != nil {
			return resolution{}, err
		}
		return resolution{
			delta:   session.Delta{Inventory: changes},
			outcome: action.OutcomeSuccess,
			facts:   []action.Fact{{Name: "item_type", Value: req.ItemTypeID}},
		}, nil
	case action.KindSkillCheck:
		return p.resolveSkillCheck(actor, req, src)
	case action.KindConfirmCheck:
		return p.resolveConfirmCheck(sess, req, src)
	case action.KindEndTurn:
		return p.resolveEndTurn(sess, req)
	case action.KindEndSession:
		return resolution{
			delta:   session.Delta{EndSession: true},
			outcome: action.OutcomeSuccess,
			facts:   []action.Fact{{Name: "session_ended", Value: "true"}},
		}, nil
	}
	return resolution{}, apperrors.New(apperrors.CodeValidationKindInvalid, "action kind is not recognized").
		WithMetadata("kind", string(req.Kind))
}

// resolveAmbient handles actions with no mechanical effect beyond the
// version bump. While exploring, each carries a small chance of a danger
// event surfacing as a narration fact.
func (p *Processor) resolveAmbient(sess session.Session, req action.Request, src *random.Source, facts []action.Fact) (resolution, error) {
	if req.Description != "" {
		facts = append(facts, action.Fact{Name: "description", Value: req.Description})
	}
	delta := session.Delta{}
	if sess.Phase == session.PhaseExploring && rules.DangerEvent(src) {
		facts = append(facts, action.Fact{Name: "danger_event", Value: "true"})
	}
	if sess.Phase == session.PhaseCombat {
		// Repositioning consumes the combat turn.
		delta.SetEncounter = scheduler.Advance(sess.Encounter, aliveAfter(sess, "", 0))
	}
	return resolution{
		delta:   delta,
		outcome: action.OutcomeSuccess,
		rolls:   src.Draws(),
		facts:   facts,
	}, nil
}

func (p *Processor) resolveEngage(sess session.Session, req action.Request) (resolution, error) {
	target, ok := sess.Character(req.TargetID)
	if !ok {
		return resolution{}, apperrors.New(apperrors.CodeCharacterNotFound, "target is not a session character").
			WithMetadata("character_id", req.TargetID)
	}
	if !target.Hostile {
		return resolution{}, apperrors.New(apperrors.CodeRuleTargetNotHostile, "target is not an enemy").
			WithMetadata("character_id", target.ID)
	}
	if !target.Alive() {
		return resolution{}, apperrors.New(apperrors.CodeRuleTargetDefeated, "target is already defeated").
			WithMetadata("character_id", target.ID)
	}

	encounterID, err := p.idGenerator()
	if err != nil {
		return resolution{}, apperrors.New(apperrors.CodeUnknown, "generate encounter id").Wrap(err)
	}

	// Every living character joins the encounter.
	var participants []session.Character
	for _, c := range sess.Characters {
		if c.Alive() {
			participants = append(participants, c)
		}
	}

	enc := scheduler.Start(encounterID, participants)
	combat := session.PhaseCombat
	first, _ := enc.CurrentActor()
	return resolution{
		delta: session.Delta{
			Phase:        &combat,
			SetEncounter: enc,
		},
		outcome: action.OutcomeSuccess,
		facts: []action.Fact{
			{Name: "encounter_id", Value: encounterID},
			{Name: "first_actor", Value: first},
		},
	}, nil
}

func (p *Processor) resolveAttack(sess session.Session, actor session.Character, req action.Request, src *random.Source) (resolution, error) {
	target, ok := sess.Character(req.TargetID)
	if !ok {
		return resolution{}, apperrors.New(apperrors.CodeCharacterNotFound, "target is not a session character").
			WithMetadata("character_id", req.TargetID)
	}

	combat, err := rules.ResolveCombatAction(rules.CombatAction{ActorID: actor.ID, TargetID: target.ID}, actor, target, p.catalog, src)
	if err != nil {
		return resolution{}, err
	}

	delta := session.Delta{}
	if combat.Damage > 0 {
		delta.Resources = append(delta.Resources, session.ResourceChange{
			CharacterID: target.ID,
			Resource:    session.ResourceHealth,
			Delta:       -combat.Damage,
		})
	}

	facts := []action.Fact{
		{Name: "target", Value: target.ID},
		{Name: "hit", Value: strconv.FormatBool(combat.Hit)},
		{Name: "damage", Value: strconv.Itoa(combat.Damage)},
		{Name: "target_health", Value: strconv.Itoa(combat.TargetHealthAfter)},
	}

	end := encounterEndAfter(sess, target.ID, combat.TargetHealthAfter)
	switch end {
	case session.EndVictory:
		// The encounter leaves the session with the combat phase; its
		// terminal condition lives on in the result facts.
		delta.ClearEncounter = true
		phase := session.PhaseExploring
		defeated := countDefeatedHostiles(sess, target.ID, combat.TargetHealthAfter)
		delta.Progress = append(delta.Progress, session.ProgressAward{
			CharacterID: actor.ID,
			XP:          defeated * xpVictoryAward,
		})
		facts = append(facts, action.Fact{Name: "encounter_end", Value: "victory"})
		// A won encounter advances the quest; completing the final
		// objective moves the session into reward resolution.
		if index, ok := nextObjective(sess.Quest); ok {
			delta.ObjectivesMet = append(delta.ObjectivesMet, index)
			if questCompleteAfter(sess.Quest, index) {
				phase = session.PhaseQuestResolution
				facts = append(facts, action.Fact{Name: "quest_complete", Value: sess.Quest.Title})
			}
		}
		delta.Phase = &phase
	case session.EndDefeat:
		delta.ClearEncounter = true
		delta.EndSession = true
		facts = append(facts, action.Fact{Name: "encounter_end", Value: "defeat"})
	default:
		delta.SetEncounter = scheduler.Advance(sess.Encounter, aliveAfter(sess, target.ID, combat.TargetHealthAfter))
	}

	return resolution{
		delta:   delta,
		outcome: action.OutcomeTag(combat.Outcome),
		rolls:   src.Draws(),
		facts:   facts,
	}, nil
}

func (p *Processor) resolveUseItem(sess session.Session, actor session.Character, req action.Request, src *random.Source) (resolution, error) {
	inv, res, err := rules.UseItem(actor, req.ItemTypeID, p.catalog)
	if err != nil {
		return resolution{}, err
	}

	delta := session.Delta{Inventory: inv, Resources: res}
	if sess.Phase == session.PhaseCombat {
		// Using an item consumes the combat turn.
		delta.SetEncounter = scheduler.Advance(sess.Encounter, aliveAfter(sess, "", 0))
	}

	facts := []action.Fact{{Name: "item_type", Value: req.ItemTypeID}}
	for _, change := range res {
		facts = append(facts, action.Fact{Name: string(change.Resource) + "_restored", Value: strconv.Itoa(change.Delta)})
	}
	return resolution{
		delta:   delta,
		outcome: action.OutcomeSuccess,
		rolls:   src.Draws(),
		facts:   facts,
	}, nil
}

// resolveSkillCheck pre-rolls the check and hides it behind a pending
// confirmation. The raw draws stay out of the result until the actor
// confirms.
func (p *Processor) resolveSkillCheck(actor session.Character, req action.Request, src *random.Source) (resolution, error) {
	tierName := req.Difficulty
	if tierName == "" {
		tierName = string(rules.TierMedium)
	}
	tier, ok := rules.ParseTier(tierName)
	if !ok {
		return resolution{}, apperrors.New(apperrors.CodeInvalidDifficultyTier, "unknown difficulty tier").
			WithMetadata("tier", tierName)
	}

	check, err := rules.ResolveSkillCheck(rules.SkillCheckRequest{
		ActorID:     actor.ID,
		Attribute:   session.Attribute(req.Attribute),
		Tier:        tier,
		Description: req.Description,
	}, actor, src)
	if err != nil {
		return resolution{}, err
	}

	pending := session.PendingCheck{
		ActorID:      actor.ID,
		Description:  req.Description,
		Attribute:    session.Attribute(req.Attribute),
		Tier:         string(check.Tier),
		Threshold:    check.Threshold,
		Modifier:     check.Modifier,
		BaseRoll:     check.BaseRoll,
		TiebreakRoll: check.TiebreakRoll,
		Outcome:      string(check.Outcome),
	}
	phase := session.PhaseSkillCheckPending
	return resolution{
		delta: session.Delta{
			Phase:      &phase,
			SetPending: &pending,
		},
		outcome: action.OutcomeSuccess,
		// Rolls stay hidden until the confirmation reveals them.
		facts: []action.Fact{
			{Name: "check", Value: "pending"},
			{Name: "attribute", Value: string(pending.Attribute)},
			{Name: "tier", Value: pending.Tier},
		},
	}, nil
}

func (p *Processor) resolveConfirmCheck(sess session.Session, req action.Request, src *random.Source) (resolution, error) {
	pending := sess.Pending
	if pending == nil {
		return resolution{}, apperrors.New(apperrors.CodeNoPendingCheck, "no skill check is awaiting confirmation")
	}
	if pending.ActorID != req.ActorID {
		return resolution{}, apperrors.New(apperrors.CodeNotYourTurn, "the pending check belongs to another actor").
			WithMetadata("actor_id", req.ActorID).
			WithMetadata("pending_actor_id", pending.ActorID)
	}

	exploring := session.PhaseExploring
	delta := session.Delta{
		Phase:        &exploring,
		ClearPending: true,
	}

	outcome := action.OutcomeTag(pending.Outcome)
	rolls := []int{pending.BaseRoll}
	if pending.TiebreakRoll > 0 {
		rolls = append(rolls, pending.TiebreakRoll)
	}

	facts := []action.Fact{
		{Name: "attribute", Value: string(pending.Attribute)},
		{Name: "tier", Value: pending.Tier},
		{Name: "threshold", Value: strconv.Itoa(pending.Threshold)},
		{Name: "roll", Value: strconv.Itoa(pending.BaseRoll)},
		{Name: "modifier", Value: strconv.Itoa(pending.Modifier)},
		{Name: "outcome", Value: pending.Outcome},
	}
	if pending.TiebreakRoll > 0 {
		facts = append(facts, action.Fact{Name: "tiebreak_roll", Value: strconv.Itoa(pending.TiebreakRoll)})
	}

	if !rules.Outcome(pending.Outcome).Succeeded() {
		// A confirmed failure bites back.
		damage := rules.FailureConsequence(src)
		delta.Resources = append(delta.Resources, session.ResourceChange{
			CharacterID: req.ActorID,
			Resource:    session.ResourceHealth,
			Delta:       -damage,
		})
		rolls = append(rolls, src.Draws()...)
		facts = append(facts, action.Fact{Name: "consequence_damage", Value: strconv.Itoa(damage)})
	}

	return resolution{
		delta:   delta,
		outcome: outcome,
		rolls:   rolls,
		facts:   facts,
	}, nil
}

// resolveQuestClaim applies the completed quest's pending rewards and
// returns the session to exploration. Rewards grant at most once per
// quest, guarded by the rewards_claimed flag.
func (p *Processor) resolveQuestClaim(sess session.Session, req action.Request) (resolution, error) {
	exploring := session.PhaseExploring
	delta := session.Delta{
		Phase:      &exploring,
		QuestFlags: map[string]bool{"rewards_claimed": true},
	}

	if sess.Quest.Flags["rewards_claimed"] {
		return resolution{
			delta:   delta,
			outcome: action.OutcomeSuccess,
			facts:   []action.Fact{{Name: "quest", Value: sess.Quest.Title}},
		}, nil
	}

	rewards := sess.Quest.Rewards
	for _, c := range sess.Characters {
		if c.Hostile || c.Controller != session.ControllerPlayer {
			continue
		}
		delta.Progress = append(delta.Progress, session.ProgressAward{
			CharacterID: c.ID,
			XP:          rewards.XP,
			Currency:    rewards.Currency,
		})
	}
	for _, itemTypeID := range rewards.ItemIDs {
		if _, err := p.catalog.Resolve(itemTypeID); err != nil {
			return resolution{}, err
		}
		delta.Inventory = append(delta.Inventory, session.InventoryChange{
			CharacterID:   req.ActorID,
			ItemTypeID:    itemTypeID,
			QuantityDelta: 1,
		})
	}

	facts := []action.Fact{
		{Name: "quest", Value: sess.Quest.Title},
		{Name: "reward_xp", Value: strconv.Itoa(rewards.XP)},
		{Name: "reward_currency", Value: strconv.Itoa(rewards.Currency)},
	}
	return resolution{
		delta:   delta,
		outcome: action.OutcomeSuccess,
		facts:   facts,
	}, nil
}

// nextObjective returns the index of the first unmet objective.
func nextObjective(q session.QuestState) (int, bool) {
	for i, objective := range q.Objectives {
		if !objective.Met {
			return i, true
		}
	}
	return 0, false
}

// questCompleteAfter reports whether meeting one more objective would
// complete the quest.
func questCompleteAfter(q session.QuestState, index int) bool {
	if len(q.Objectives) == 0 {
		return false
	}
	for i, objective := range q.Objectives {
		if i == index {
			continue
		}
		if !objective.Met {
			return false
		}
	}
	return true
}

func (p *Processor) resolveEndTurn(sess session.Session, req action.Request) (resolution, error) {
	delta := session.Delta{}
	facts := []action.Fact{{Name: "turn_ended", Value: req.ActorID}}
	if sess.Phase == session.PhaseCombat {
		next := scheduler.Advance(sess.Encounter, aliveAfter(sess, "", 0))
		delta.SetEncounter = next
		if actor, ok := next.CurrentActor(); ok {
			facts = append(facts, action.Fact{Name: "next_actor", Value: actor})
		}
	}
	return resolution{
		delta:   delta,
		outcome: action.OutcomeSuccess,
		facts:   facts,
	}, nil
}

// aliveAfter reports liveness with one character's health hypothetically
// replaced, so scheduling can skip a participant the current delta just
// downed.
func aliveAfter(sess session.Session, changedID string, healthAfter int) func(string) bool {
	return func(actorID string) bool {
		if actorID == changedID {
			return healthAfter > 0
		}
		c, ok := sess.Character(actorID)
		return ok && c.Alive()
	}
}

// encounterEndAfter evaluates the terminal condition with the damage
// applied.
func encounterEndAfter(sess session.Session, changedID string, healthAfter int) session.EncounterEnd {
	if sess.Encounter == nil {
		return session.EndUnspecified
	}
	var participants []session.Character
	for _, participantID := range sess.Encounter.Participants {
		c, ok := sess.Character(participantID)
		if !ok {
			continue
		}
		if c.ID == changedID {
			c.Health = healthAfter
		}
		participants = append(participants, c)
	}
	return rules.EncounterOutcome(participants)
}

func countDefeatedHostiles(sess session.Session, changedID string, healthAfter int) int {
	count := 0
	for _, c := range sess.Characters {
		if !c.Hostile {
			continue
		}
		health := c.Health
		if c.ID == changedID {
			health = healthAfter
		}
		if health <= 0 {
			count++
		}
	}
	return count
}

// reject builds the durable rejection result for a typed error.
func (p *Processor) reject(req action.Request, version uint64, err error) action.Result {
	return action.Result{
		SessionID:      req.SessionID,
		ActorID:        req.ActorID,
		IdempotencyKey: req.IdempotencyKey,
		Kind:           req.Kind,
		Outcome:        action.OutcomeRejected,
		Rejection: &action.Rejection{
			Code:    string(apperrors.GetCode(err)),
			Message: apperrors.GetMessage(err),
			Details: apperrors.GetMetadata(err),
		},
		Version:     version,
		ProcessedAt: p.clock().UTC(),
	}
}

// narrate renders the committed result. Each renderer attempt is
// bounded by the upstream timeout and retried with backoff; once the
// attempts are exhausted the failure surfaces as an upstream error
// alongside the already-durable result.
func (p *Processor) narrate(ctx context.Context, result action.Result) (action.Result, error) {
	if p.renderer == nil {
		return result, nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.narrate")
	defer span.End()

	var memories []string
	if p.memories != nil {
		memCtx, cancel := context.WithTimeout(ctx, p.upstreamTimeout)
		records, err := p.memories.Retrieve(memCtx, result.SessionID, narrationQuery(result), 5)
		cancel()
		if err == nil {
			for _, record := range records {
				memories = append(memories, record.Content)
			}
		}
	}

	var prose string
	backoff := retry.WithMaxRetries(narrationRetries, retry.NewFibonacci(p.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.upstreamTimeout)
		defer cancel()

		out, rerr := p.renderer.Render(callCtx, result, memories)
		if rerr != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) || apperrors.IsCode(rerr, apperrors.CodeUpstreamUnavailable) {
				return retry.RetryableError(rerr)
			}
			return rerr
		}
		prose = out
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable) {
			return result, apperrors.New(apperrors.CodeUpstreamUnavailable, "narration renderer unavailable").Wrap(err)
		}
		return result, fmt.Errorf("render narration: %w", err)
	}

	result.Facts = append(result.Facts, action.Fact{Name: "narration", Value: prose})
	p.remember(ctx, result, prose)
	return result, nil
}

// remember appends the narrated event to the memory store, best effort.
func (p *Processor) remember(ctx context.Context, result action.Result, prose string) {
	if p.memories == nil {
		return
	}
	recordID, err := p.idGenerator()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.upstreamTimeout)
	defer cancel()
	_ = p.memories.Append(ctx, memory.Record{
		ID:        recordID,
		SessionID: result.SessionID,
		Kind:      "narration",
		Content:   prose,
		Turn:      result.Version,
	})
}

func narrationQuery(result action.Result) string {
	query := string(result.Kind)
	if description, ok := result.Fact("description"); ok {
		query += " " + description
	}
	return query
}

// emitResult records one telemetry event per processed action.
func (p *Processor) emitResult(ctx context.Context, result action.Result) {
	if p.emitter == nil {
		return
	}

	eventName := "action.committed"
	severity := telemetry.SeverityInfo
	attributes := map[string]any{
		"kind":    string(result.Kind),
		"outcome": string(result.Outcome),
		"version": result.Version,
	}
	if result.Rejected() {
		eventName = "action.rejected"
		severity = telemetry.SeverityWarn
		if result.Rejection != nil {
			attributes["code"] = result.Rejection.Code
		}
	}

	span := trace.SpanFromContext(ctx)
	_ = p.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:  eventName,
		Severity:   string(severity),
		SessionID:  result.SessionID,
		ActorID:    result.ActorID,
		RequestID:  result.IdempotencyKey,
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Attributes: attributes,
	})
}
