package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// testEntity is a minimal Entity implementation for rule tests.
type testEntity struct {
	public    bool
	internal  bool
	private   bool
	createdBy *uuid.UUID
	groups    []string
}

func (e *testEntity) IsPublic() bool   { return e.public }
func (e *testEntity) IsInternal() bool { return e.internal }
func (e *testEntity) IsPrivate() bool  { return e.private }
func (e *testEntity) CreatedBy() (uuid.UUID, bool) {
	if e.createdBy == nil {
		return uuid.UUID{}, false
	}
	return *e.createdBy, true
}
func (e *testEntity) AuthorizationGroups() []string { return e.groups }

// constant returns a restriction with a fixed result that counts its
// evaluations.
func constant(result bool, err error, calls *int) ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		*calls++
		return result, err
	}
}

func TestRestrictionOr(t *testing.T) {
	ctx := context.Background()
	object := &testEntity{}

	cases := []struct {
		name        string
		left, right bool
		want        bool
	}{
		{"false or false", false, false, false},
		{"false or true", false, true, true},
		{"true or false", true, false, true},
		{"true or true", true, true, true},
	}
	for _, tc := range cases {
		var leftCalls, rightCalls int
		or := constant(tc.left, nil, &leftCalls).Or(constant(tc.right, nil, &rightCalls))
		ok, err := or.Evaluate(ctx, object)
		if err != nil {
			t.Fatal(tc.name, err)
		}
		if ok != tc.want {
			t.Fatalf("%s: got %v", tc.name, ok)
		}
	}
}

func TestRestrictionAnd(t *testing.T) {
	ctx := context.Background()
	object := &testEntity{}

	cases := []struct {
		name        string
		left, right bool
		want        bool
	}{
		{"false and false", false, false, false},
		{"false and true", false, true, false},
		{"true and false", true, false, false},
		{"true and true", true, true, true},
	}
	for _, tc := range cases {
		var leftCalls, rightCalls int
		and := constant(tc.left, nil, &leftCalls).And(constant(tc.right, nil, &rightCalls))
		ok, err := and.Evaluate(ctx, object)
		if err != nil {
			t.Fatal(tc.name, err)
		}
		if ok != tc.want {
			t.Fatalf("%s: got %v", tc.name, ok)
		}
	}
}

// The right operand must not be evaluated when the left operand already
// decides the result. The order is part of the contract: the right operand
// may hide an identity-service call.
func TestRestrictionShortCircuit(t *testing.T) {
	ctx := context.Background()
	object := &testEntity{}

	var leftCalls, rightCalls int
	or := constant(true, nil, &leftCalls).Or(constant(false, nil, &rightCalls))
	or.Evaluate(ctx, object)
	if leftCalls != 1 || rightCalls != 0 {
		t.Fatalf("or did not short-circuit: left %d right %d", leftCalls, rightCalls)
	}

	leftCalls, rightCalls = 0, 0
	and := constant(false, nil, &leftCalls).And(constant(true, nil, &rightCalls))
	and.Evaluate(ctx, object)
	if leftCalls != 1 || rightCalls != 0 {
		t.Fatalf("and did not short-circuit: left %d right %d", leftCalls, rightCalls)
	}
}

// Errors propagate immediately; the right operand is skipped and the error
// is never converted into a deny.
func TestRestrictionErrorPropagation(t *testing.T) {
	ctx := context.Background()
	object := &testEntity{}
	boom := errors.New("identity service down")

	var rightCalls int
	or := ObjectRestriction(func(ctx context.Context, object Entity) (bool, error) {
		return false, boom
	}).Or(constant(true, nil, &rightCalls))

	_, err := or.Evaluate(ctx, object)
	if !errors.Is(err, boom) {
		t.Fatal("or did not propagate the error:", err)
	}
	if rightCalls != 0 {
		t.Fatal("or evaluated the right operand after an error")
	}

	and := ObjectRestriction(func(ctx context.Context, object Entity) (bool, error) {
		return false, boom
	}).And(constant(true, nil, &rightCalls))

	_, err = and.Evaluate(ctx, object)
	if !errors.Is(err, boom) {
		t.Fatal("and did not propagate the error:", err)
	}
	if rightCalls != 0 {
		t.Fatal("and evaluated the right operand after an error")
	}
}
