package auth_test

import (
	"context"
	"errors"
	"testing"

	"marketplace/internal/auth"
	"marketplace/internal/store/memory"
)

func TestAuthorizeTruthTable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	// Seeding twice must be harmless.
	for i := 0; i < 2; i++ {
		if err := auth.EnsureBuiltins(ctx, store); err != nil {
			t.Fatalf("EnsureBuiltins: %v", err)
		}
	}

	seller := &auth.User{Email: "seller@x.com", Active: true}
	customer := &auth.User{Email: "customer@x.com", Active: true}
	nobody := &auth.User{Email: "nobody@x.com", Active: true}
	root := &auth.User{Email: "root@x.com", Active: true, Superuser: true}
	for _, u := range []*auth.User{seller, customer, nobody, root} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	for userID, roleName := range map[string]string{seller.ID: "seller", customer.ID: "customer"} {
		role, err := store.FindRoleByName(ctx, roleName)
		if err != nil {
			t.Fatalf("FindRoleByName(%s): %v", roleName, err)
		}
		for i := 0; i < 2; i++ {
			if err := store.AssignRole(ctx, userID, role.ID); err != nil {
				t.Fatalf("AssignRole: %v", err)
			}
		}
	}

	eval, err := auth.NewEvaluator(store)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	cases := []struct {
		user *auth.User
		code string
		want bool
	}{
		{seller, auth.PermProductCreate, true},
		{seller, auth.PermOrderReadAll, false},
		{customer, auth.PermOrderCreate, true},
		{customer, auth.PermProductCreate, false},
		{customer, "order.create.extra", false},
		{customer, "ORDER.CREATE", false},
		{nobody, auth.PermOrderCreate, false},
		{root, auth.PermOrderReadAll, true},
		{root, "anything.at.all", true},
	}
	for _, tc := range cases {
		got, err := eval.Authorize(ctx, tc.user.Principal(), tc.code)
		if err != nil {
			t.Fatalf("Authorize(%s, %s): %v", tc.user.Email, tc.code, err)
		}
		if got != tc.want {
			t.Fatalf("Authorize(%s, %s) = %v, want %v", tc.user.Email, tc.code, got, tc.want)
		}
	}

	if err := eval.Require(ctx, seller.Principal(), auth.PermShopManage); err != nil {
		t.Fatalf("Require seller: %v", err)
	}
	if err := eval.Require(ctx, customer.Principal(), auth.PermShopManage); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

type failingRBAC struct{}

func (failingRBAC) MembershipsOf(context.Context, string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (failingRBAC) GrantsOf(context.Context, string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestAuthorizeSuperuserSkipsLookups(t *testing.T) {
	eval, err := auth.NewEvaluator(failingRBAC{})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	ok, err := eval.Authorize(context.Background(), auth.Principal{ID: "root", Superuser: true}, auth.PermShopManage)
	if err != nil || !ok {
		t.Fatalf("superuser: ok=%v err=%v", ok, err)
	}

	ok, err = eval.Authorize(context.Background(), auth.Principal{ID: "u1"}, auth.PermShopManage)
	if ok {
		t.Fatal("store failure must not grant")
	}
	if !auth.IsRetryable(err) || auth.IsDenial(err) {
		t.Fatalf("expected retryable infrastructure error, got %v", err)
	}
}
