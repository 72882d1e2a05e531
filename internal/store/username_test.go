package store

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseUsername(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"john.doe@gmail.com", "johndoe"},
		{"sarah_smith123@yahoo.com", "sarahsmith123"},
		{"rider+test@example.com", "rider"},
		{"Al@example.com", "aluser"},
		{"", "user"},
		{"averyveryverylongnamethatkeepsgoing@example.com", "averyveryverylongnam"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseUsername(tt.email))
		})
	}
}

func TestUniqueUsernameAddsSuffix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.CreateUserRecord(ctx, NewUser("a", "johndoe", Profile{}, now)))
	require.NoError(t, s.CreateUserRecord(ctx, NewUser("b", "johndoe1", Profile{}, now)))

	name, err := UniqueUsername(ctx, s, "john.doe@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "johndoe2", name)
}

func TestUniqueUsernameFallsBackToRandomSuffix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.CreateUserRecord(ctx, NewUser("base", "rider", Profile{}, now)))
	for i := 1; i <= maxSuffix; i++ {
		require.NoError(t, s.CreateUserRecord(ctx, NewUser("u"+strconv.Itoa(i), "rider"+strconv.Itoa(i), Profile{}, now)))
	}

	name, err := UniqueUsername(ctx, s, "rider@example.com")
	require.NoError(t, err)
	assert.Regexp(t, `^rider\d{4}$`, name)
}

type failingStore struct{ *MemoryStore }

func (failingStore) UsernameTaken(context.Context, string) (bool, error) {
	return false, errors.New("unavailable")
}

func TestUniqueUsernamePropagatesStoreErrors(t *testing.T) {
	_, err := UniqueUsername(context.Background(), failingStore{NewMemoryStore()}, "x@example.com")
	assert.Error(t, err)
}
