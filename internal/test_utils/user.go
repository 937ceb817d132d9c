package test_utils

import (
	"context"

	"github.com/campusflow/campusflow/pkg/user"
)

const TestUserId = "user-123"

// UserContext returns a context carrying the authenticated test user.
func UserContext(userId string) context.Context {
	return user.WithUser(context.Background(), user.User{Id: userId})
}
