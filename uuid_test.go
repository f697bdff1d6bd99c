package dispatch_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDotsLabs/dispatch"
)

func generateConcurrently(t *testing.T, genFunc func() string) []string {
	t.Helper()

	producers := 50
	idsPerProducer := 2000
	if testing.Short() {
		producers = 10
		idsPerProducer = 200
	}

	ids := make(chan string, producers*idsPerProducer)
	wg := sync.WaitGroup{}
	wg.Add(producers)

	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerProducer; j++ {
				ids <- genFunc()
			}
		}()
	}

	wg.Wait()
	close(ids)

	var all []string
	for id := range ids {
		all = append(all, id)
	}

	return all
}

func TestIDGenerators_are_unique(t *testing.T) {
	testCases := []struct {
		Name    string
		GenFunc func() string
	}{
		{Name: "uuid", GenFunc: dispatch.NewUUID},
		{Name: "short_uuid", GenFunc: dispatch.NewShortUUID},
		{Name: "ulid", GenFunc: dispatch.NewULID},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			ids := generateConcurrently(t, tc.GenFunc)

			seen := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				_, duplicate := seen[id]
				require.False(t, duplicate, "%s has duplicate", id)
				seen[id] = struct{}{}
			}
		})
	}
}

func TestNewUUID_format(t *testing.T) {
	parsed, err := uuid.Parse(dispatch.NewUUID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestNewShortUUID_format(t *testing.T) {
	assert.Len(t, dispatch.NewShortUUID(), 22)
}

func TestNewULID_sorts_by_creation(t *testing.T) {
	var ids []string
	for i := 0; i < 1000; i++ {
		id := dispatch.NewULID()

		_, err := ulid.Parse(id)
		require.NoError(t, err)

		ids = append(ids, id)
	}

	assert.True(t, sort.StringsAreSorted(ids))
}
