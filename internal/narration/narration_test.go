package narration

import (
	"context"
	"strings"
	"testing"

	"github.com/fableguard/fableguard/internal/action"
)

func TestTemplateRendererOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result action.Result
		want   []string
	}{
		{
			name: "success with facts",
			result: action.Result{
				ActorID: "pc-1",
				Kind:    action.KindSkillCheck,
				Outcome: action.OutcomeSuccess,
				Facts: []action.Fact{
					{Name: "attribute", Value: "agility"},
				},
			},
			want: []string{"pc-1", "test their skill", "succeeds", "attribute: agility"},
		},
		{
			name: "critical failure",
			result: action.Result{
				ActorID: "pc-1",
				Kind:    action.KindAttack,
				Outcome: action.OutcomeCriticalFailure,
			},
			want: []string{"attack", "fails badly"},
		},
		{
			name: "rejection uses the typed message",
			result: action.Result{
				ActorID: "pc-1",
				Kind:    action.KindAttack,
				Outcome: action.OutcomeRejected,
				Rejection: &action.Rejection{
					Code:    "NOT_YOUR_TURN",
					Message: "it is not your turn",
				},
			},
			want: []string{"it is not your turn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prose, err := TemplateRenderer{}.Render(context.Background(), tt.result, nil)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, fragment := range tt.want {
				if !strings.Contains(prose, fragment) {
					t.Errorf("prose %q missing %q", prose, fragment)
				}
			}
		})
	}
}
