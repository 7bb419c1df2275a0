package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"marketplace/internal/auth"
)

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg, err := auth.NewRegistrar(f.store, auth.WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("NewRegistrar: %v", err)
	}

	user, err := reg.Register(ctx, auth.Registration{
		Email:           " New@X.com",
		Username:        "newbie",
		FirstName:       " Ada ",
		LastName:        "Lovelace",
		Password:        "s3cret-pass",
		PasswordConfirm: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "new@x.com" || !user.Active {
		t.Fatalf("unexpected user: %+v", user)
	}
	if strings.Contains(user.PasswordHash, "s3cret-pass") {
		t.Fatal("password stored in clear")
	}

	stored, err := f.store.FindUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if stored.FirstName != "Ada" || stored.LastName != "Lovelace" {
		t.Fatalf("names not stored: %q %q", stored.FirstName, stored.LastName)
	}

	pair, err := f.sessions.Login(ctx, "new@x.com", "s3cret-pass", auth.ClientMeta{})
	if err != nil || pair.AccessToken == "" {
		t.Fatalf("Login: %v", err)
	}

	_, err = reg.Register(ctx, auth.Registration{Email: "new@x.com", Username: "again", Password: "p", PasswordConfirm: "p"})
	if !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	reg, err := auth.NewRegistrar(f.store)
	if err != nil {
		t.Fatalf("NewRegistrar: %v", err)
	}

	for name, r := range map[string]auth.Registration{
		"bad email":         {Email: "not-an-email", Username: "u", Password: "p", PasswordConfirm: "p"},
		"missing username":  {Email: "a@x.com", Password: "p", PasswordConfirm: "p"},
		"missing password":  {Email: "a@x.com", Username: "u"},
		"password mismatch": {Email: "a@x.com", Username: "u", Password: "p", PasswordConfirm: "q"},
	} {
		if _, err := reg.Register(context.Background(), r); !errors.Is(err, auth.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}
