package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/docmirror/pkg/mirror"
	"github.com/marmos91/docmirror/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	calls atomic.Int32
	err   error
}

func (f *fakeDownloader) TryCleanDownload(ctx context.Context) (mirror.Result, error) {
	f.calls.Add(1)
	return mirror.Result{Keys: 1, Written: 1}, f.err
}

func TestRefresher_RunsOnInterval(t *testing.T) {
	d := &fakeDownloader{}
	r := New(d, Config{Interval: 10 * time.Millisecond})
	r.Start()
	r.Start()

	assert.Eventually(t, func() bool { return d.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))

	calls := d.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, d.calls.Load(), "no refresh after Stop")
}

func TestRefresher_Disabled(t *testing.T) {
	d := &fakeDownloader{}
	r := New(d, Config{})
	r.Start()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, d.calls.Load())
	assert.NoError(t, r.Stop(context.Background()))
}

func TestRefresher_RunNowReportsErrors(t *testing.T) {
	d := &fakeDownloader{err: tree.ErrBusy}
	r := New(d, Config{})
	assert.ErrorIs(t, r.RunNow(context.Background()), tree.ErrBusy)

	d.err = errors.New("store down")
	assert.EqualError(t, r.RunNow(context.Background()), "store down")

	d.err = nil
	assert.NoError(t, r.RunNow(context.Background()))
	assert.Equal(t, int32(3), d.calls.Load())
}
