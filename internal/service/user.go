package service

import (
	"errors"

	"golang.org/x/net/context"

	"github.com/MayhemBill/zipline/internal/repo"
	"github.com/MayhemBill/zipline/model"
	"github.com/MayhemBill/zipline/utils"
)

// UserService backs the login boundary. Account management itself lives
// outside this core; files and folders only reference owners by id.
type UserService struct {
	users repo.UserRepository
}

// NewUserService wires a UserService.
func NewUserService(users repo.UserRepository) *UserService {
	return &UserService{users: users}
}

// Authenticate checks credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetByName(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, &AccessDeniedError{Reason: DenyForbidden}
	}
	if !utils.CheckPwd(password, user.Password) {
		return nil, &AccessDeniedError{Reason: DenyBadPassword}
	}
	return user, nil
}
