package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tracker-codec/internal/payload"
	"tracker-codec/internal/pipeline"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "uplinks.db"))
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

var base = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func tracking(id, eui string, at time.Time) *pipeline.TrackingObject {
	return &pipeline.TrackingObject{
		ID:          id,
		DevEUI:      eui,
		FPort:       2,
		FCnt:        7,
		Datetime:    at,
		Payload:     "011d90",
		Kind:        payload.KindLocationFixed,
		Lat:         4.0535033,
		Lon:         9.694495,
		Consistent:  true,
		Diagnostics: []string{},
	}
}

func TestSaveAndUplinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, s.Save(ctx, tracking(fmt.Sprintf("u-%d", i), "a840", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Save(ctx, tracking("other", "b111", base)))

	got, err := s.Uplinks(ctx, "a840", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"u-4", "u-3", "u-2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.Equal(t, payload.KindLocationFixed, got[0].Kind)
	require.True(t, got[0].Datetime.Equal(base.Add(4*time.Minute)))

	n, err := s.Count(ctx, "a840")
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
}

func TestSaveIgnoresDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, tracking("u-1", "a840", base)))
	require.NoError(t, s.Save(ctx, tracking("u-1", "a840", base.Add(time.Hour))))

	n, err := s.Count(ctx, "a840")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestUplinksEmptyAndClamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.Uplinks(ctx, "none", 10)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.Save(ctx, tracking("u-1", "a840", base)))
	got, err = s.Uplinks(ctx, "a840", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestOpenFailure(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "missing", "dir", "uplinks.db"))
	err := s.Save(context.Background(), tracking("u-1", "a840", base))
	require.Error(t, err)
	require.NoError(t, s.Close())
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "uplinks.db"))
	require.NoError(t, s.Close())

	err := s.Save(context.Background(), tracking("u-1", "a840", base))
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Uplinks(context.Background(), "a840", 10)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, s.Close())
}

func TestCloseDuringSave(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "uplinks.db"))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save(context.Background(), tracking(fmt.Sprintf("u-%d", i), "a840", base))
			_, _ = s.Count(context.Background(), "a840")
		}()
	}
	require.NoError(t, s.Close())
	wg.Wait()

	err := s.Save(context.Background(), tracking("u-late", "a840", base))
	require.ErrorIs(t, err, ErrClosed)
}
