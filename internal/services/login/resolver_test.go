package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/models"
)

func usernameSpec(candidates ...string) models.FieldSpec {
	return models.FieldSpec{Name: models.FieldUsername, Candidates: candidates}
}

func TestResolverFirstVisibleCandidateWins(t *testing.T) {
	session := &fakeSession{visible: map[string]bool{"#user": true, "#email": true}}
	resolver := NewSelectorResolver(arbor.NewLogger())

	selector, err := resolver.Resolve(context.Background(), session,
		usernameSpec("#user", "#email"), time.Second)

	require.NoError(t, err)
	assert.Equal(t, "#user", selector)
}

func TestResolverFallsThroughToLaterCandidate(t *testing.T) {
	session := &fakeSession{visible: map[string]bool{"#email": true}}
	resolver := NewSelectorResolver(arbor.NewLogger())

	selector, err := resolver.Resolve(context.Background(), session,
		usernameSpec("#user", "#email"), 3*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "#email", selector, "probe moves on after the first candidate's window expires")
}

func TestResolverTimeoutReportsAllCandidates(t *testing.T) {
	session := &fakeSession{}
	resolver := NewSelectorResolver(arbor.NewLogger())

	started := time.Now()
	_, err := resolver.Resolve(context.Background(), session,
		usernameSpec("#user", "#email"), 120*time.Millisecond)
	elapsed := time.Since(started)

	var notFound *models.FieldNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, models.FieldUsername, notFound.Field)
	assert.Equal(t, []string{"#user", "#email"}, notFound.Candidates)
	assert.Less(t, elapsed, time.Second, "resolution must stop at the field deadline")
}

func TestResolverStopsOnCallerCancellation(t *testing.T) {
	session := &fakeSession{}
	resolver := NewSelectorResolver(arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := resolver.Resolve(ctx, session, usernameSpec("#user"), 10*time.Second)
	elapsed := time.Since(started)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	var notFound *models.FieldNotFoundError
	assert.False(t, errors.As(err, &notFound), "caller cancellation is not a missing field")
	assert.Less(t, elapsed, 2*time.Second)
}
