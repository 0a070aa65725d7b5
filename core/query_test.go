package core

import (
	"errors"
	"testing"
)

func TestCriterion_Validate(t *testing.T) {
	if err := NewCriterion("state", OpEqual, 100).Validate(); err != nil {
		t.Fatalf("valid criterion rejected: %v", err)
	}
	if err := NewCriterion("claims.person.name", OpLike, "ali%").Validate(); err != nil {
		t.Fatalf("dotted path criterion rejected: %v", err)
	}

	err := NewCriterion("", OpEqual, 1).Validate()
	if err == nil || !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected invalid filter for empty left operand, got %v", err)
	}

	err = NewCriterion("state", Operator("between"), 1).Validate()
	if err == nil || !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected invalid filter for unknown operator, got %v", err)
	}
}

func TestCriterion_InRequiresList(t *testing.T) {
	if err := NewCriterion("state", OpIn, []int{100, 200}).Validate(); err != nil {
		t.Fatalf("list operand rejected: %v", err)
	}
	if err := NewCriterion("state", OpIn, []string{"APPROVED"}).Validate(); err != nil {
		t.Fatalf("string list operand rejected: %v", err)
	}

	err := NewCriterion("state", OpIn, 100).Validate()
	if err == nil || !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected invalid filter for scalar operand, got %v", err)
	}
}

func TestNewCriterion_NormalizesOperator(t *testing.T) {
	criterion := NewCriterion(" state ", Operator(" IN "), []int{100})
	if criterion.Left != "state" {
		t.Fatalf("expected trimmed left operand, got %q", criterion.Left)
	}
	if criterion.Operator != OpIn {
		t.Fatalf("expected lowered operator, got %q", criterion.Operator)
	}
}

func TestQuerySpec_ValidateAndNormalize(t *testing.T) {
	spec := NewQuerySpec().
		WithCriterion("participant_context_id", OpEqual, "participant-1").
		WithSort("state_timestamp", SortDescending).
		WithPage(10, 0)
	if err := spec.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	normalized := spec.Normalized()
	if normalized.Limit != DefaultQueryLimit {
		t.Fatalf("expected default limit, got %d", normalized.Limit)
	}
	if normalized.Offset != 10 {
		t.Fatalf("expected offset preserved, got %d", normalized.Offset)
	}
}

func TestQuerySpec_RejectsBadInput(t *testing.T) {
	if err := (QuerySpec{SortOrder: SortOrder("sideways")}).Validate(); err == nil {
		t.Fatalf("expected invalid sort order to fail")
	}
	if err := (QuerySpec{Offset: -1}).Validate(); err == nil {
		t.Fatalf("expected negative offset to fail")
	}
	if err := (QuerySpec{Limit: -5}).Validate(); err == nil {
		t.Fatalf("expected negative limit to fail")
	}

	spec := NewQuerySpec().WithCriterion("state", Operator(">"), 100)
	err := spec.Validate()
	if err == nil || !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected criterion validation to surface, got %v", err)
	}
}
