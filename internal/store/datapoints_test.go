package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/logging"
	"github.com/tejusbharadwaj/nbeconnect/internal/models"
)

func newTestStore() *DatapointStore {
	return NewDatapointStore(logging.Get(logging.Discard(), "store"))
}

func TestSetReplacesWholeMap(t *testing.T) {
	s := newTestStore()

	require.True(t, s.Set([]string{"a=1", "b=2"}))
	require.True(t, s.Set([]string{"c=3"}))

	_, ok := s.Get("a")
	assert.False(t, ok, "keys from the previous poll must vanish")

	v, ok := s.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	assert.Equal(t, []string{"c"}, s.ListKeys())
}

func TestSetDropsMalformedItems(t *testing.T) {
	s := newTestStore()

	require.True(t, s.Set([]string{"a=1", "bogus", "b=2"}))

	snap := s.Snapshot()
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, snap.GetAllStartingWith(""))
	assert.Equal(t, 1, snap.Malformed())
}

func TestParseDatapoint(t *testing.T) {
	tests := []struct {
		item    string
		want    models.Datapoint
		wantErr bool
	}{
		{"operating_data/boiler_temp=61.5", models.Datapoint{Key: "operating_data/boiler_temp", Value: "61.5"}, false},
		{"a=b=c", models.Datapoint{Key: "a", Value: "b=c"}, false},
		{"empty=", models.Datapoint{Key: "empty", Value: ""}, false},
		{"bogus", models.Datapoint{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.item, func(t *testing.T) {
			got, err := ParseDatapoint(tt.item)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedDatapoint))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetSplitsOnFirstEquals(t *testing.T) {
	s := newTestStore()

	s.Set([]string{"consumption_data/total_hours=total_hours=1,2,3", "empty="})

	v, _ := s.Get("consumption_data/total_hours")
	assert.Equal(t, "total_hours=1,2,3", v)

	v, ok := s.Get("empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestEmptySetKeepsPreviousSnapshot(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.Loaded())

	assert.False(t, s.Set(nil))
	assert.False(t, s.Loaded(), "empty set must leave the store unset")

	s.Set([]string{"a=1"})
	before := s.Snapshot()

	assert.False(t, s.Set([]string{}))
	assert.Same(t, before, s.Snapshot())

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestGetAllStartingWith(t *testing.T) {
	s := newTestStore()
	s.Set([]string{
		"settings/boiler/temp=65",
		"settings/boiler/diff_over=5",
		"settings/hot_water/temp=50",
		"operating_data/boiler_temp=62.1",
	})

	got := s.GetAllStartingWith("settings/boiler/")
	assert.Equal(t, map[string]string{
		"settings/boiler/temp":      "65",
		"settings/boiler/diff_over": "5",
	}, got)

	assert.Empty(t, s.GetAllStartingWith("advanced_data/"))
}

func TestUnsetStoreReads(t *testing.T) {
	s := newTestStore()

	_, ok := s.Get("anything")
	assert.False(t, ok)
	assert.Empty(t, s.ListKeys())
	assert.Empty(t, s.GetAllStartingWith(""))
	assert.True(t, s.Snapshot().TakenAt().IsZero())
}

func TestConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	s := newTestStore()
	s.Set([]string{"a=1", "b=1"})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				snap := s.Snapshot()
				a, _ := snap.Get("a")
				b, _ := snap.Get("b")
				assert.Equal(t, a, b)
			}
		}()
	}

	for j := 0; j < 200; j++ {
		if j%2 == 0 {
			s.Set([]string{"a=2", "b=2"})
		} else {
			s.Set([]string{"a=1", "b=1"})
		}
	}
	wg.Wait()
}
