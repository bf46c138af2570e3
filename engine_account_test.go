package goGrant

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goGrant/session"
)

func strPtr(s string) *string { return &s }

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.exchange(t, env.signUp(t, "ada@example.com", "old password"))
	id := first.User.ID

	err := env.engine.ChangePassword(ctx, id, "wrong", "new password")
	expectErr(t, err, ErrInvalidPassword)

	if err := env.engine.ChangePassword(ctx, id, "old password", "new password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := env.engine.ValidateAccessToken(ctx, first.Token.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected sessions closed, got %v", err)
	}
	if _, err := env.engine.SignIn(ctx, Credentials{Email: "ada@example.com", Password: "new password"}, testAuthRequest("s")); err != nil {
		t.Fatalf("SignIn with new password failed: %v", err)
	}

	rec, err := env.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Salt == "" || rec.HashedPassword == "" {
		t.Fatalf("expected credential material written through")
	}
}

func TestCompleteMissingDataPromotesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.SignUp(ctx, SignUpInput{FirstName: "Ada", Email: "ada@example.com"}, testAuthRequest("s1"))
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	resp := env.exchange(t, code)
	id := resp.User.ID
	if env.store.Len() != 0 {
		t.Fatalf("incomplete account persisted early")
	}

	_, err = env.engine.UpdateProfile(ctx, id, ProfileUpdate{FirstName: strPtr("Augusta")})
	expectErr(t, err, ErrIncompleteAccountEditNotAllowed)

	v, err := env.engine.CompleteMissingData(ctx, id, MissingData{LastName: strPtr("Lovelace")})
	if err != nil {
		t.Fatalf("CompleteMissingData failed: %v", err)
	}
	if v.Warning == nil || v.Warning.MissingItems[0] != "authMethod" {
		t.Fatalf("expected authMethod still missing, got %+v", v.Warning)
	}
	if env.store.Len() != 0 {
		t.Fatalf("account persisted with a required gap")
	}

	v, err = env.engine.CompleteMissingData(ctx, id, MissingData{Password: strPtr("pw")})
	if err != nil {
		t.Fatalf("CompleteMissingData failed: %v", err)
	}
	if v.Warning == nil || len(v.Warning.MissingItems) != 1 || v.Warning.MissingItems[0] != "email verification" {
		t.Fatalf("expected only email verification missing, got %+v", v.Warning)
	}
	rec, err := env.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("expected durable record after completion: %v", err)
	}
	if rec.LastName != "Lovelace" || rec.EmailVerified {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAccountCompleted]; got != 1 {
		t.Fatalf("expected one completion counted, got %d", got)
	}

	_, err = env.engine.CompleteMissingData(ctx, id, MissingData{FirstName: strPtr("Augusta")})
	expectErr(t, err, ErrAccountComplete)
}

func TestCompleteMissingDataRejectsTakenEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "grace@example.com", "pw")

	code, err := env.engine.SignUp(ctx, SignUpInput{FirstName: "Ada", Email: "ada@example.com", Password: "pw"}, testAuthRequest("s1"))
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	id := env.exchange(t, code).User.ID

	_, err = env.engine.CompleteMissingData(ctx, id, MissingData{LastName: strPtr("Lovelace"), Email: strPtr("grace@example.com")})
	expectErr(t, err, ErrEmailAlreadyInUse)
	if env.store.Len() != 1 {
		t.Fatalf("expected only the first account persisted")
	}
}

func TestUpdateProfileEmailChangeResetsVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.exchange(t, env.signUp(t, "ada@example.com", "pw")).User.ID

	if err := env.engine.GetEmailVerification(ctx, "ada@example.com", testAuthRequest("v1")); err != nil {
		t.Fatalf("GetEmailVerification failed: %v", err)
	}
	encoded, _ := linkCodeFrom(t, env.mailer.last(t).body)
	if err := env.engine.VerifyEmail(ctx, LinkCode{Code: encoded, State: "v1", RedirectURI: testRedirectURI}, testClientID); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	v, err := env.engine.UpdateProfile(ctx, id, ProfileUpdate{FirstName: strPtr("Augusta")})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if v.User.FirstName != "Augusta" || v.Warning != nil {
		t.Fatalf("unexpected validation %+v", v)
	}

	v, err = env.engine.UpdateProfile(ctx, id, ProfileUpdate{Email: strPtr("augusta@example.com")})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if v.Warning == nil || v.Warning.MissingItems[0] != "email verification" {
		t.Fatalf("expected email verification re-added, got %+v", v.Warning)
	}

	env.signUp(t, "grace@example.com", "pw")
	_, err = env.engine.UpdateProfile(ctx, id, ProfileUpdate{Email: strPtr("grace@example.com")})
	expectErr(t, err, ErrEmailAlreadyInUse)
}

func TestLogOutAndCloseAllSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.exchange(t, env.signUp(t, "ada@example.com", "pw"))
	code, err := env.engine.SignIn(ctx, Credentials{Email: "ada@example.com", Password: "pw"}, testAuthRequest("s2"))
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	second := env.exchange(t, code)
	third := env.exchange(t, mustSignIn(t, env))

	if err := env.engine.LogOut(ctx, first.Token.AccessToken); err != nil {
		t.Fatalf("LogOut failed: %v", err)
	}
	if err := env.engine.LogOut(ctx, first.Token.AccessToken); err != nil {
		t.Fatalf("second LogOut must be a no-op, got %v", err)
	}
	members, _ := env.rdb.SMembers(ctx, session.SessionsKey(first.User.ID)).Result()
	if len(members) != 2 {
		t.Fatalf("expected two indexed sessions, got %v", members)
	}

	removed, err := env.engine.CloseAllSessions(ctx, first.User.ID)
	if err != nil {
		t.Fatalf("CloseAllSessions failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 sessions removed, got %d", removed)
	}
	for _, tok := range []string{second.Token.AccessToken, third.Token.AccessToken} {
		if _, err := env.engine.ValidateAccessToken(ctx, tok); !errors.Is(err, ErrInvalidAccessToken) {
			t.Fatalf("expected session closed, got %v", err)
		}
	}
	if env.mr.Exists(session.SessionsKey(first.User.ID)) {
		t.Fatalf("expected session index removed")
	}

	removed, err = env.engine.CloseAllSessions(ctx, first.User.ID)
	if err != nil || removed != 0 {
		t.Fatalf("expected idempotent close, got %d %v", removed, err)
	}
}

func TestSetConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.exchange(t, env.signUp(t, "ada@example.com", "pw"))

	if err := env.engine.SetConnection(ctx, resp.Token.AccessToken, true); err != nil {
		t.Fatalf("SetConnection failed: %v", err)
	}
	if got := env.mr.HGet(session.Key(resp.Token.AccessToken), "connection"); got != "true" {
		t.Fatalf("expected connection true, got %q", got)
	}
	err := env.engine.SetConnection(ctx, "missing-token", true)
	expectErr(t, err, ErrInvalidAccessToken)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.exchange(t, env.signUp(t, "ada@example.com", "pw"))

	if err := env.engine.DeleteAccount(ctx, resp.User.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected durable record removed")
	}
	if _, err := env.engine.ValidateAccessToken(ctx, resp.Token.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected session closed, got %v", err)
	}
	_, err := env.engine.GetDisplayData(ctx, resp.User.ID)
	expectErr(t, err, ErrUserNotRegistered)
}

func mustSignIn(t *testing.T, env *testEnv) *AuthorizationCode {
	t.Helper()
	code, err := env.engine.SignIn(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"}, testAuthRequest("s1"))
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return code
}
