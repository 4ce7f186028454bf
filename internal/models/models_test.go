package models

import (
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestAccountBeforeCreateGeneratesID(t *testing.T) {
	a := &Account{}
	if err := a.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected account ID to be generated")
	}
}

func TestTokenPurposeValid(t *testing.T) {
	valid := []TokenPurpose{
		PurposePasswordReset,
		PurposePasswordChange,
		PurposeEmailChangeOld,
		PurposeEmailChangeNew,
		PurposeEmailVerification,
	}
	for _, p := range valid {
		if !p.Valid() {
			t.Fatalf("expected %q to be valid", p)
		}
	}
	if TokenPurpose("session").Valid() {
		t.Fatal("unexpected purpose accepted")
	}
}

func TestTokenPurposeRequiresGroup(t *testing.T) {
	if !PurposeEmailChangeOld.RequiresGroup() || !PurposeEmailChangeNew.RequiresGroup() {
		t.Fatal("email change purposes must be grouped")
	}
	if PurposePasswordReset.RequiresGroup() {
		t.Fatal("password reset tokens are standalone")
	}
}

func TestCredentialTokenExpired(t *testing.T) {
	now := time.Now()
	token := CredentialToken{ExpiresAt: now.Add(time.Minute)}
	if token.Expired(now) {
		t.Fatal("token should still be live")
	}
	if !token.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("token should be expired")
	}
}

func TestAccountIsAdmin(t *testing.T) {
	if (&Account{AccessLevel: AccessLevelUser}).IsAdmin() {
		t.Fatal("user level is not admin")
	}
	if !(&Account{AccessLevel: AccessLevelAdmin}).IsAdmin() {
		t.Fatal("admin level is admin")
	}
	if !(&Account{AccessLevel: AccessLevelSuperadmin}).IsAdmin() {
		t.Fatal("superadmin level is admin")
	}
}
