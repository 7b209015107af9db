package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestError_IsMatchesByCode(t *testing.T) {
	base := New(CodeNotYourTurn, "actor is not eligible")
	decorated := base.WithMetadata("actor_id", "char-1").Wrap(fmt.Errorf("turn pointer at char-2"))

	if !errors.Is(decorated, base) {
		t.Error("decorated error should match its sentinel by code")
	}
	if errors.Is(decorated, New(CodePhaseMismatch, "other")) {
		t.Error("errors with different codes should not match")
	}
}

func TestError_WithMetadataDoesNotMutate(t *testing.T) {
	base := New(CodeRuleItemNotInCatalog, "item type is not part of this world")
	_ = base.WithMetadata("item_type", "laser_pistol")
	if base.Metadata != nil {
		t.Error("WithMetadata mutated the base error")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{
			name: "domain error",
			err:  New(CodeVersionConflict, "stale version"),
			want: CodeVersionConflict,
		},
		{
			name: "wrapped domain error",
			err:  fmt.Errorf("commit: %w", New(CodePhaseMismatch, "attack during exploring")),
			want: CodePhaseMismatch,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode_GRPCCode(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeValidationSessionIDEmpty, codes.InvalidArgument},
		{CodeRuleItemNotInCatalog, codes.FailedPrecondition},
		{CodeNotYourTurn, codes.FailedPrecondition},
		{CodePhaseMismatch, codes.FailedPrecondition},
		{CodeNotFound, codes.NotFound},
		{CodeVersionConflict, codes.Aborted},
		{CodeUpstreamUnavailable, codes.Unavailable},
		{CodeUnknown, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.GRPCCode(); got != tt.want {
				t.Errorf("GRPCCode() = %v, want %v", got, tt.want)
			}
		})
	}
}
