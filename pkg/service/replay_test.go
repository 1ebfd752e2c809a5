//nolint:thelper,funlen // ok for tests
package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/notify"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/metadata"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
	"github.com/mpapenbr/f1replay-service-go/testsupport/basedata"
)

type fakeLoader struct {
	calls   atomic.Int32
	forced  atomic.Int32
	release chan struct{}
	modify  func(*model.Session)
	err     error
}

//nolint:whitespace // can't make both editor and linter happy
func (f *fakeLoader) Load(
	ctx context.Context, key model.SessionKey, opts source.LoadOptions,
) (*model.Session, error) {
	f.calls.Add(1)
	if opts.ForceRefresh {
		f.forced.Add(1)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	s := basedata.SampleSessionWithType(key.Type)
	s.Key = key
	if f.modify != nil {
		f.modify(s)
	}
	return s, nil
}

func newTestService(loader source.Loader) (*ReplayService, chan notify.Event) {
	events := make(chan notify.Event, 10)
	return New(loader, cache.New(),
		WithFrameRate(5),
		WithPublisher(notify.NewChannel(events))), events
}

func TestLoadSessionReuse(t *testing.T) {
	loader := &fakeLoader{}
	svc, events := newTestService(loader)
	req := LoadRequest{Key: basedata.SampleKey()}

	first, reused, err := svc.LoadSession(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEmpty(t, first.Frames)
	assert.Equal(t, 5, first.FrameRate)
	assert.NotEmpty(t, first.LoadID)
	assert.Equal(t, "Jack Doohan", first.Info.DriverNames["DOO"])
	assert.Contains(t, first.Frames[0].Drivers, "DOO")

	ev := <-events
	assert.Equal(t, notify.EventSessionLoaded, ev.Type)
	assert.Equal(t, "2025_1_R", ev.SessionID)
	assert.Equal(t, len(first.Frames), ev.TotalFrames)

	second, reused, err := svc.LoadSession(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loader.calls.Load())

	req.ForceRefresh = true
	third, reused, err := svc.LoadSession(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.LoadID, third.LoadID)
	assert.Equal(t, int32(2), loader.calls.Load())
	assert.Equal(t, int32(1), loader.forced.Load())

	cached, err := svc.Cache().Get("2025_1_R")
	require.NoError(t, err)
	assert.Same(t, third, cached)
}

func TestLoadSessionFailures(t *testing.T) {
	tests := []struct {
		name    string
		loader  *fakeLoader
		wantErr error
	}{
		{
			name:    "not found",
			loader:  &fakeLoader{err: source.ErrSessionNotFound},
			wantErr: source.ErrSessionNotFound,
		},
		{
			name: "no fastest lap",
			loader: &fakeLoader{modify: func(s *model.Session) {
				for i := range s.Laps {
					s.Laps[i].LapTime = math.NaN()
				}
			}},
			wantErr: metadata.ErrNoFastestLap,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, events := newTestService(tt.loader)
			_, _, err := svc.LoadSession(context.Background(),
				LoadRequest{Key: basedata.SampleKey()})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, svc.Cache().Len())
			ev := <-events
			assert.Equal(t, notify.EventLoadFailed, ev.Type)
			assert.NotEmpty(t, ev.Error)
		})
	}
}

func TestLoadSessionFailedRefreshKeepsEntry(t *testing.T) {
	loader := &fakeLoader{}
	svc, _ := newTestService(loader)
	first, _, err := svc.LoadSession(context.Background(), LoadRequest{Key: basedata.SampleKey()})
	require.NoError(t, err)

	loader.err = errors.New("upstream down")
	_, _, err = svc.LoadSession(context.Background(),
		LoadRequest{Key: basedata.SampleKey(), ForceRefresh: true})
	require.Error(t, err)

	cached, err := svc.Cache().Get("2025_1_R")
	require.NoError(t, err)
	assert.Same(t, first, cached)
}

func TestLoadSessionCanceled(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{})}
	svc, _ := newTestService(loader)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.LoadSession(ctx, LoadRequest{Key: basedata.SampleKey()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, svc.Cache().Len())
}

func TestLoadSessionConcurrent(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{})}
	svc, _ := newTestService(loader)

	const n = 5
	var (
		wg      sync.WaitGroup
		entries [n]*cache.Entry
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _, err := svc.LoadSession(context.Background(),
				LoadRequest{Key: basedata.SampleKey()})
			assert.NoError(t, err)
			entries[i] = e
		}()
	}
	assert.Eventually(t, func() bool { return loader.calls.Load() == 1 },
		time.Second, 5*time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for i := range n {
		assert.Same(t, entries[0], entries[i])
	}
}

func TestLoadSessionCanceledLeader(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{})}
	svc, _ := newTestService(loader)
	req := LoadRequest{Key: basedata.SampleKey()}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := svc.LoadSession(leaderCtx, req)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	type result struct {
		entry *cache.Entry
		err   error
	}
	waiter := make(chan result, 1)
	go func() {
		e, _, err := svc.LoadSession(context.Background(), req)
		waiter <- result{e, err}
	}()

	cancelLeader()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller still waiting")
	}

	close(loader.release)
	select {
	case r := <-waiter:
		require.NoError(t, r.err)
		assert.NotEmpty(t, r.entry.Frames)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not receive the shared load")
	}
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, 1, svc.Cache().Len())
}

func TestLoadSessionCanceledWaiter(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{})}
	defer close(loader.release)
	svc, _ := newTestService(loader)
	req := LoadRequest{Key: basedata.SampleKey()}

	go svc.LoadSession(context.Background(), req) //nolint:errcheck // result not needed
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, err := svc.LoadSession(ctx, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, svc.Cache().Len(), "shared load is still blocked")
}

func TestLoadSessionTimeout(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{})}
	defer close(loader.release)
	svc := New(loader, cache.New(), WithFrameRate(5), WithLoadTimeout(50*time.Millisecond))
	_, _, err := svc.LoadSession(context.Background(), LoadRequest{Key: basedata.SampleKey()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, svc.Cache().Len())
}

func TestLoadSessionDriverKeys(t *testing.T) {
	loader := &fakeLoader{modify: func(s *model.Session) {
		s.Drivers = append(s.Drivers, model.Driver{
			Number: "7", Code: "DOO", FirstName: "Jack", LastName: "Doohan", TeamName: "Alpine",
		})
		s.Telemetry["7"] = s.Telemetry["1"]
		// driver without a timing entry
		s.Telemetry["31"] = s.Telemetry["4"]
	}}
	svc, _ := newTestService(loader)
	e, _, err := svc.LoadSession(context.Background(), LoadRequest{Key: basedata.SampleKey()})
	require.NoError(t, err)

	want := []string{"VER", "NOR", "DOO", "DOO7", "31"}
	for _, f := range e.Frames {
		require.Len(t, f.Drivers, len(want), "frame %d", f.Index)
		for _, code := range want {
			require.Contains(t, f.Drivers, code, "frame %d", f.Index)
		}
	}
	for _, code := range want {
		assert.Contains(t, e.Info.DriverNames, code)
		assert.Contains(t, e.Info.DriverTeams, code)
		assert.Contains(t, e.Info.DriverColors, code)
	}
	assert.Equal(t, "Jack Doohan", e.Info.DriverNames["DOO"])
	assert.Equal(t, "Jack Doohan", e.Info.DriverNames["DOO7"])
	assert.Equal(t, metadata.UnknownTeam, e.Info.DriverTeams["31"])
	assert.Equal(t, metadata.PaletteColor("31"), e.Info.DriverColors["31"])
}

func TestLoadSessionSprint(t *testing.T) {
	svc, _ := newTestService(&fakeLoader{})
	key := basedata.SampleKey()
	key.Type = model.SessionTypeSprint
	e, _, err := svc.LoadSession(context.Background(), LoadRequest{Key: key})
	require.NoError(t, err)
	assert.Equal(t, "Sprint", e.Info.SessionLabel())
	assert.Equal(t, []string{"2025_1_S"}, svc.Cache().Keys())
}
