package scheduler

import (
	"errors"
	"testing"

	"github.com/fableguard/fableguard/internal/session"
)

func combatant(id string, agility int) session.Character {
	return session.Character{
		ID:         id,
		Name:       id,
		Controller: session.ControllerPlayer,
		Attributes: map[session.Attribute]int{session.AttrAgility: agility},
		Health:     10,
		MaxHealth:  10,
	}
}

func TestRollInitiative(t *testing.T) {
	tests := []struct {
		name         string
		participants []session.Character
		want         []string
	}{
		{
			name: "agility descending",
			participants: []session.Character{
				combatant("slow", 8),
				combatant("fast", 16),
				combatant("mid", 12),
			},
			want: []string{"fast", "mid", "slow"},
		},
		{
			name: "id tiebreak",
			participants: []session.Character{
				combatant("b", 10),
				combatant("a", 10),
			},
			want: []string{"a", "b"},
		},
		{
			name: "mixed ties",
			participants: []session.Character{
				combatant("c", 14),
				combatant("b", 10),
				combatant("a", 14),
			},
			want: []string{"a", "c", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Initiative is a pure function of participants: repeated
			// computation must always agree.
			for run := 0; run < 10; run++ {
				got := RollInitiative(tt.participants)
				if len(got) != len(tt.want) {
					t.Fatalf("RollInitiative() = %v, want %v", got, tt.want)
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Fatalf("run %d: RollInitiative() = %v, want %v", run, got, tt.want)
					}
				}
			}
		})
	}
}

func TestCheckEligible(t *testing.T) {
	enc := Start("enc-1", []session.Character{
		combatant("a", 14),
		combatant("b", 10),
	})

	if err := CheckEligible(enc, "a"); err != nil {
		t.Errorf("current actor should be eligible: %v", err)
	}
	if err := CheckEligible(enc, "b"); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("off-turn actor error = %v, want ErrNotYourTurn", err)
	}
	if err := CheckEligible(nil, "a"); !errors.Is(err, ErrEncounterNotActive) {
		t.Errorf("nil encounter error = %v, want ErrEncounterNotActive", err)
	}

	resolved := Resolve(enc, session.EndVictory)
	if err := CheckEligible(resolved, "a"); !errors.Is(err, ErrEncounterResolved) {
		t.Errorf("resolved encounter error = %v, want ErrEncounterResolved", err)
	}
}

func TestAdvance_RoundProgression(t *testing.T) {
	enc := Start("enc-1", []session.Character{
		combatant("a", 14),
		combatant("b", 10),
	})
	if enc.Round != 1 {
		t.Fatalf("Round = %d, want 1", enc.Round)
	}

	alive := func(string) bool { return true }

	enc = Advance(enc, alive)
	if actor, _ := enc.CurrentActor(); actor != "b" {
		t.Fatalf("after first advance, current actor = %q, want b", actor)
	}
	if enc.Round != 1 {
		t.Fatalf("Round = %d, want 1", enc.Round)
	}

	enc = Advance(enc, alive)
	if actor, _ := enc.CurrentActor(); actor != "a" {
		t.Fatalf("after wrap, current actor = %q, want a", actor)
	}
	if enc.Round != 2 {
		t.Fatalf("Round = %d, want 2 after the last actor acted", enc.Round)
	}
}

func TestAdvance_SkipsDefeated(t *testing.T) {
	enc := Start("enc-1", []session.Character{
		combatant("a", 14),
		combatant("b", 12),
		combatant("c", 10),
	})

	enc = Advance(enc, func(id string) bool { return id != "b" })
	if actor, _ := enc.CurrentActor(); actor != "c" {
		t.Fatalf("current actor = %q, want c (b defeated)", actor)
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	enc := Start("enc-1", []session.Character{
		combatant("a", 14),
		combatant("b", 10),
	})

	_ = Advance(enc, func(string) bool { return true })
	if enc.TurnIndex != 0 || enc.Round != 1 {
		t.Error("Advance mutated its input encounter")
	}
}
