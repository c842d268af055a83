package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/adapter"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/notice"
)

type searchLog struct {
	mu    sync.Mutex
	texts []string
}

func (l *searchLog) add(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.texts = append(l.texts, text)
}

func (l *searchLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.texts...)
}

type fixture struct {
	api      *adapter.Mock
	store    *catalog.Store
	clock    *FakeClock
	notices  *notice.Recorder
	searches *searchLog
	ctrl     *Controller
}

func newFixture(t *testing.T, search func(text string) ([]model.Product, error)) *fixture {
	t.Helper()
	f := &fixture{
		store:    catalog.New(true),
		clock:    NewFakeClock(),
		notices:  &notice.Recorder{},
		searches: &searchLog{},
	}
	f.api = &adapter.Mock{
		SearchProductsFunc: func(_ context.Context, text string) ([]model.Product, error) {
			f.searches.add(text)
			return search(text)
		},
	}
	f.ctrl = New(f.api, f.store, Config{Clock: f.clock, Notices: f.notices})
	t.Cleanup(f.ctrl.Close)
	return f
}

func products(ids ...string) []model.Product {
	out := make([]model.Product, len(ids))
	for i, id := range ids {
		out[i] = model.Product{ID: id, Name: id, Cost: decimal.NewFromInt(1)}
	}
	return out
}

func TestDebounceBurst(t *testing.T) {
	f := newFixture(t, func(text string) ([]model.Product, error) {
		return products(text), nil
	})

	keystrokes := []struct {
		at   time.Duration
		text string
	}{
		{0, "s"},
		{100 * time.Millisecond, "so"},
		{200 * time.Millisecond, "sof"},
		{600 * time.Millisecond, "sofa"},
	}

	var handles []Handle
	for _, k := range keystrokes {
		f.clock.AdvanceTo(k.at)
		handles = append(handles, f.ctrl.OnSearchInput(k.text))
	}
	f.clock.Advance(2 * time.Second)

	assert.Equal(t, []string{"sofa"}, f.searches.all())
	assert.Equal(t, 1, f.api.SearchCalls())
	assert.Equal(t, "sofa", f.store.Products()[0].ID)
	for _, h := range handles {
		assert.False(t, h.Pending())
	}
	assert.Equal(t, 0, f.notices.Len())
}

func TestDebounceFiresAfterQuietWindow(t *testing.T) {
	f := newFixture(t, func(text string) ([]model.Product, error) {
		return products(text), nil
	})

	h := f.ctrl.OnSearchInput("pen")
	f.clock.Advance(DefaultDelay - time.Millisecond)
	assert.True(t, h.Pending())
	assert.Empty(t, f.searches.all())

	f.clock.Advance(time.Millisecond)
	assert.False(t, h.Pending())
	assert.Equal(t, []string{"pen"}, f.searches.all())
}

func TestSeparateWindowsEachFire(t *testing.T) {
	f := newFixture(t, func(text string) ([]model.Product, error) {
		return products(text), nil
	})

	f.ctrl.OnSearchInput("a")
	f.clock.Advance(time.Second)
	f.ctrl.OnSearchInput("b")
	f.clock.Advance(time.Second)

	assert.Equal(t, []string{"a", "b"}, f.searches.all())
	assert.Equal(t, "b", f.store.Products()[0].ID)
}

func TestStaleCallbackIsInert(t *testing.T) {
	var fired []func()
	clock := clockFunc(func(_ time.Duration, fn func()) Timer {
		fired = append(fired, fn)
		return lostRaceTimer{}
	})

	searches := &searchLog{}
	api := &adapter.Mock{
		SearchProductsFunc: func(_ context.Context, text string) ([]model.Product, error) {
			searches.add(text)
			return products(text), nil
		},
	}
	ctrl := New(api, catalog.New(true), Config{Clock: clock})
	defer ctrl.Close()

	ctrl.OnSearchInput("old")
	ctrl.OnSearchInput("new")
	require.Len(t, fired, 2)

	// Stop lost the race: both callbacks run anyway.
	fired[0]()
	fired[1]()
	assert.Equal(t, []string{"new"}, searches.all())
}

func TestHandleCancel(t *testing.T) {
	f := newFixture(t, func(text string) ([]model.Product, error) {
		return products(text), nil
	})

	old := f.ctrl.OnSearchInput("a")
	current := f.ctrl.OnSearchInput("ab")
	old.Cancel()
	assert.True(t, current.Pending(), "cancelling a superseded handle must not affect the current one")

	current.Cancel()
	f.clock.Advance(time.Second)
	assert.Empty(t, f.searches.all())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestCloseRefusesInput(t *testing.T) {
	f := newFixture(t, func(text string) ([]model.Product, error) {
		return products(text), nil
	})

	f.ctrl.OnSearchInput("a")
	f.ctrl.Close()
	h := f.ctrl.OnSearchInput("b")
	f.clock.Advance(time.Second)

	assert.False(t, h.Pending())
	assert.Empty(t, f.searches.all())
}

func TestSearchOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		result     []model.Product
		wantIDs    []string
		wantNotice string
	}{
		{
			name:    "results replace catalog",
			result:  products("X", "Y"),
			wantIDs: []string{"X", "Y"},
		},
		{
			name:    "empty result empties catalog",
			result:  []model.Product{},
			wantIDs: []string{},
		},
		{
			name:    "no matches empties catalog silently",
			err:     model.NewNotFoundError("products"),
			wantIDs: []string{},
		},
		{
			name:       "server fault keeps catalog",
			err:        model.NewServiceError(500, "Internal server error"),
			wantIDs:    []string{"A", "B"},
			wantNotice: "Internal server error",
		},
		{
			name:       "server fault without message",
			err:        model.NewServiceError(500, ""),
			wantIDs:    []string{"A", "B"},
			wantNotice: model.MsgSearchFailed,
		},
		{
			name:       "malformed response keeps catalog",
			err:        model.NewMalformedResponseError("storefront service", errors.New("bad json")),
			wantIDs:    []string{"A", "B"},
			wantNotice: model.MsgSearchFailed,
		},
		{
			name:       "unreachable keeps catalog",
			err:        model.NewUnreachableError("storefront service", errors.New("connection refused")),
			wantIDs:    []string{"A", "B"},
			wantNotice: model.MsgSearchUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(string) ([]model.Product, error) {
				return tt.result, tt.err
			})
			f.store.Replace(products("A", "B"))

			f.ctrl.OnSearchInput("q")
			f.clock.Advance(DefaultDelay)

			var ids []string
			for _, p := range f.store.Products() {
				ids = append(ids, p.ID)
			}
			if ids == nil {
				ids = []string{}
			}
			assert.Equal(t, tt.wantIDs, ids)

			if tt.wantNotice == "" {
				assert.Equal(t, 0, f.notices.Len())
				return
			}
			got := f.notices.Notices()
			require.Len(t, got, 1)
			assert.Equal(t, notice.SeverityError, got[0].Severity)
			assert.Equal(t, tt.wantNotice, got[0].Message)
		})
	}
}

func TestOutOfOrderResponsesAreDiscarded(t *testing.T) {
	store := catalog.New(true)
	ctrl := New(&adapter.Mock{
		SearchProductsFunc: func(_ context.Context, text string) ([]model.Product, error) {
			return products(text), nil
		},
	}, store, Config{Clock: NewFakeClock()})
	defer ctrl.Close()

	older := store.NextSeq()
	newer := store.NextSeq()

	ctrl.Search(t.Context(), newer, "newer")
	ctrl.Search(t.Context(), older, "older")

	assert.Equal(t, "newer", store.Products()[0].ID)
}

func TestRealClockFires(t *testing.T) {
	done := make(chan string, 1)
	api := &adapter.Mock{
		SearchProductsFunc: func(_ context.Context, text string) ([]model.Product, error) {
			done <- text
			return nil, nil
		},
	}
	ctrl := New(api, catalog.New(true), Config{Delay: 10 * time.Millisecond})
	defer ctrl.Close()

	ctrl.OnSearchInput("x")
	ctrl.OnSearchInput("xy")

	select {
	case text := <-done:
		assert.Equal(t, "xy", text)
	case <-time.After(2 * time.Second):
		t.Fatal("search never fired")
	}
}

type clockFunc func(d time.Duration, f func()) Timer

func (c clockFunc) AfterFunc(d time.Duration, f func()) Timer { return c(d, f) }

// lostRaceTimer models a timer whose callback was already dispatched.
type lostRaceTimer struct{}

func (lostRaceTimer) Stop() bool { return false }
