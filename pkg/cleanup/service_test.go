package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/store"
)

func TestService_SweepsStaleSessions(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	stale, err := s.GetOrCreate("stale", "")
	require.NoError(t, err)
	stale.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, s.Update(stale))

	_, err = s.GetOrCreate("fresh", "")
	require.NoError(t, err)

	svc := NewService(&config.SessionConfig{
		MaxAge:          time.Hour,
		CleanupInterval: 50 * time.Millisecond,
	}, s)

	svc.Start(context.Background())
	defer svc.Stop()

	// The first sweep runs immediately at startup.
	assert.Eventually(t, func() bool {
		sessions, listErr := s.List()
		return listErr == nil && len(sessions) == 1
	}, 2*time.Second, 20*time.Millisecond)

	sessions, err := s.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "fresh", sessions[0].ID)
}

func TestService_StopIsIdempotentBeforeStart(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	svc := NewService(&config.SessionConfig{MaxAge: time.Hour, CleanupInterval: time.Minute}, s)

	// Stop before Start is a no-op.
	svc.Stop()

	svc.Start(context.Background())
	svc.Start(context.Background()) // duplicate Start ignored
	svc.Stop()
}
