package authorization

import (
	"context"
	"errors"

	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
)

type Service interface {
	// Authorize checks whether user may perform action on object.
	Authorize(ctx context.Context, user profiledomain.User, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
