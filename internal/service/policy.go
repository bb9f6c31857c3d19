package service

import (
	"time"

	"github.com/MayhemBill/zipline/model"
	"github.com/MayhemBill/zipline/utils"
)

// AccessContext carries the already-authenticated identity of a request and
// any password supplied for protected files.
type AccessContext struct {
	UserID        uint64
	Authenticated bool
	Password      string
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allow  bool
	Reason DenyReason
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Decide is the pure access check for a file. It holds no state and mutates
// nothing, so callers run it before any view-recording update. Checks
// short-circuit in order: expired, ownership, password.
func Decide(file *model.File, access AccessContext) Decision {
	// A past timestamp denies immediately even before a sweep has flipped
	// the flag.
	if file.Expired || (file.ExpiresAt != nil && !file.ExpiresAt.After(time.Now())) {
		return deny(DenyExpired)
	}
	if file.Visibility == model.VisibilityPrivate {
		if !access.Authenticated || access.UserID != file.UserID {
			return deny(DenyForbidden)
		}
	}
	if file.Protected() {
		// A missing password is reported the same as a wrong one.
		if !utils.CheckPwd(access.Password, file.PasswordHash) {
			return deny(DenyBadPassword)
		}
	}
	return Decision{Allow: true}
}

// DecisionError converts a denial into the service error taxonomy.
func DecisionError(d Decision) error {
	if d.Allow {
		return nil
	}
	return &AccessDeniedError{Reason: d.Reason}
}
