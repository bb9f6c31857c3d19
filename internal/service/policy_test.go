package service

import (
	"testing"
	"time"

	"github.com/MayhemBill/zipline/model"
	"github.com/MayhemBill/zipline/utils"
)

// TestDecidePublicFile tests access to a public file without credentials.
func TestDecidePublicFile(t *testing.T) {
	file := &model.File{ID: 1, UserID: 1, Visibility: model.VisibilityPublic}

	decision := Decide(file, AccessContext{})
	if !decision.Allow {
		t.Fatalf("expected allow, got deny(%s)", decision.Reason)
	}
}

// TestDecidePrivateFile tests ownership gating on private files.
func TestDecidePrivateFile(t *testing.T) {
	file := &model.File{ID: 1, UserID: 1, Visibility: model.VisibilityPrivate}

	decision := Decide(file, AccessContext{UserID: 2, Authenticated: true})
	if decision.Allow || decision.Reason != DenyForbidden {
		t.Fatalf("expected deny(forbidden), got %+v", decision)
	}

	decision = Decide(file, AccessContext{})
	if decision.Allow || decision.Reason != DenyForbidden {
		t.Fatalf("expected deny(forbidden) for anonymous, got %+v", decision)
	}

	decision = Decide(file, AccessContext{UserID: 1, Authenticated: true})
	if !decision.Allow {
		t.Fatalf("expected allow for owner, got deny(%s)", decision.Reason)
	}

	file.Visibility = model.VisibilityPublic
	decision = Decide(file, AccessContext{UserID: 2, Authenticated: true})
	if !decision.Allow {
		t.Fatalf("expected allow after switching to public, got deny(%s)", decision.Reason)
	}
}

// TestDecidePassword tests that missing and wrong passwords deny the same way.
func TestDecidePassword(t *testing.T) {
	file := &model.File{
		ID:           1,
		UserID:       1,
		Visibility:   model.VisibilityPublic,
		PasswordHash: utils.GetPwd("hunter2"),
	}

	decision := Decide(file, AccessContext{Password: "wrong"})
	if decision.Allow || decision.Reason != DenyBadPassword {
		t.Fatalf("expected deny(bad_password), got %+v", decision)
	}

	decision = Decide(file, AccessContext{})
	if decision.Allow || decision.Reason != DenyBadPassword {
		t.Fatalf("expected deny(bad_password) for missing password, got %+v", decision)
	}

	decision = Decide(file, AccessContext{Password: "hunter2"})
	if !decision.Allow {
		t.Fatalf("expected allow with right password, got deny(%s)", decision.Reason)
	}
}

// TestDecideExpired tests that expiry short-circuits every other check.
func TestDecideExpired(t *testing.T) {
	file := &model.File{
		ID:         1,
		UserID:     1,
		Visibility: model.VisibilityPublic,
		Expired:    true,
	}

	decision := Decide(file, AccessContext{UserID: 1, Authenticated: true})
	if decision.Allow || decision.Reason != DenyExpired {
		t.Fatalf("expected deny(expired), got %+v", decision)
	}
}

// TestDecidePastTimestamp tests denial for a past expiration even before a
// sweep has marked the file.
func TestDecidePastTimestamp(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	file := &model.File{
		ID:         1,
		UserID:     1,
		Visibility: model.VisibilityPublic,
		ExpiresAt:  &past,
	}

	decision := Decide(file, AccessContext{UserID: 1, Authenticated: true})
	if decision.Allow || decision.Reason != DenyExpired {
		t.Fatalf("expected deny(expired) for past timestamp, got %+v", decision)
	}
}
