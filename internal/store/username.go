package store

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	minUsername = 3
	maxUsername = 20
	maxSuffix   = 99
)

// BaseUsername derives the candidate username from an email address:
// lowercase alphanumerics of the local part, padded with "user" when shorter
// than three characters and cut at twenty.
func BaseUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.ToLower(local)
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[:i]
	}

	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	name := b.String()
	if len(name) < minUsername {
		name += "user"
	}
	if len(name) > maxUsername {
		name = name[:maxUsername]
	}
	return name
}

// UniqueUsername returns the first free name among base, base1..base99, and
// falls back to a random four-digit suffix after that.
func UniqueUsername(ctx context.Context, s UserStore, email string) (string, error) {
	base := BaseUsername(email)

	taken, err := s.UsernameTaken(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	for i := 1; i <= maxSuffix; i++ {
		candidate := base + strconv.Itoa(i)
		taken, err := s.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return base + strconv.Itoa(1000+rand.IntN(9000)), nil
}
