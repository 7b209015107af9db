package openai

import (
	"testing"

	"github.com/fableguard/fableguard/internal/action"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    action.Kind
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"kind":"attack","target_id":"npc-1"}`,
			want:    action.KindAttack,
		},
		{
			name:    "fenced json",
			content: "```json\n{\"kind\":\"observe\"}\n```",
			want:    action.KindObserve,
		},
		{
			name:    "unknown kind",
			content: `{"kind":"teleport"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "the player attacks",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseClassification() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Kind != tt.want {
				t.Errorf("kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}
