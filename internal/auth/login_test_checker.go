package auth

import "context"

// LoginTestChecker is a Checker with preset answers, for tests and local
// development without redis.
type LoginTestChecker struct {
	LoggedSessions map[string]bool
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		LoggedSessions: map[string]bool{},
	}
}

func (c *LoginTestChecker) IsLogged(_ context.Context, token string) (bool, error) {
	if logged, ok := c.LoggedSessions[token]; ok {
		return logged, nil
	}
	return false, nil
}
