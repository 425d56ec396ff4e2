package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLibrary struct {
	session   models.Session
	progress  []models.Progress
	records   []models.AudioRecord
	owner     string
	cancelled []string
	removed   []string
	removeAll int
	rate      float64
	playErr   error
}

func (f *fakeLibrary) RequestDownload(_ context.Context, itemID, remoteURL, _, ownerID string) (<-chan models.Progress, error) {
	if remoteURL == "" {
		return nil, common.ErrInvalidArgument
	}
	f.owner = ownerID
	ch := make(chan models.Progress, len(f.progress))
	for _, p := range f.progress {
		p.ItemID = itemID
		ch <- p
	}
	close(ch)
	return ch, nil
}

func (f *fakeLibrary) CancelDownload(itemID string) bool {
	f.cancelled = append(f.cancelled, itemID)
	return itemID == "a1"
}

func (f *fakeLibrary) RequestPlayback(_ context.Context, itemID, ownerID string) (models.Session, error) {
	f.owner = ownerID
	f.session = models.Session{ItemID: itemID, State: models.StateReady, SourceKind: models.SourceLocal, PlaybackRate: 1}
	if itemID == "gen" {
		f.session.State = models.StateGenerating
	}
	return f.session, nil
}

func (f *fakeLibrary) Play(context.Context) (models.Session, error) {
	if f.playErr != nil {
		return f.session, f.playErr
	}
	if f.session.State == models.StateReady {
		f.session.State = models.StatePlaying
		f.session.DurationSeconds = 60
	}
	return f.session, nil
}

func (f *fakeLibrary) Pause() (models.Session, error) {
	f.session.State = models.StatePaused
	return f.session, nil
}

func (f *fakeLibrary) Resume() (models.Session, error) {
	f.session.State = models.StatePlaying
	return f.session, nil
}

func (f *fakeLibrary) Stop() models.Session {
	f.session = models.Session{State: models.StateIdle}
	return f.session
}

func (f *fakeLibrary) Seek(sec float64) (models.Session, error) {
	f.session.PositionSeconds = sec
	return f.session, nil
}

func (f *fakeLibrary) SetRate(rate float64) (models.Session, error) {
	if rate <= 0 {
		return f.session, common.ErrInvalidArgument
	}
	f.rate = rate
	f.session.PlaybackRate = rate
	return f.session, nil
}

func (f *fakeLibrary) Retry(context.Context) (models.Session, error) { return f.session, nil }
func (f *fakeLibrary) Session() models.Session                       { return f.session }
func (f *fakeLibrary) Status(string) models.Status                   { return models.StatusDownloaded }
func (f *fakeLibrary) Records() []models.AudioRecord                 { return f.records }

func (f *fakeLibrary) ListDownloaded() []models.AudioRecord {
	var out []models.AudioRecord
	for _, r := range f.records {
		if r.Status == models.StatusDownloaded {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeLibrary) TotalDownloadedBytes() int64 {
	var n int64
	for _, r := range f.ListDownloaded() {
		n += r.FileSizeBytes
	}
	return n
}

func (f *fakeLibrary) RemoveDownload(_ context.Context, itemID string) error {
	f.removed = append(f.removed, itemID)
	return nil
}

func (f *fakeLibrary) RemoveAllDownloads(context.Context) error {
	f.removeAll++
	return nil
}

func newApp(lib *fakeLibrary, input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return NewApp(lib, "u1", strings.NewReader(input), &out, nil), &out
}

func TestApp_Download(t *testing.T) {
	lib := &fakeLibrary{progress: []models.Progress{
		{BytesWritten: 0, BytesTotal: 4000, Status: models.StatusDownloading},
		{BytesWritten: 1000, BytesTotal: 4000, Status: models.StatusDownloading},
		{BytesWritten: 2100, BytesTotal: 4000, Status: models.StatusDownloading},
		{BytesWritten: 4000, BytesTotal: 4000, Status: models.StatusDownloaded},
	}}
	app, out := newApp(lib, "")

	require.NoError(t, app.Download(context.Background(), []string{"a1", "https://x/a1.mp3", "Episode"}))
	app.downloads.Wait()

	assert.Equal(t, "u1", lib.owner)
	text := out.String()
	assert.Contains(t, text, "a1: 25%")
	assert.Contains(t, text, "a1: 50%")
	assert.Contains(t, text, "a1: downloaded")

	require.ErrorIs(t, app.Download(context.Background(), []string{"a1"}), errUsage)
	require.ErrorIs(t, app.Download(context.Background(), []string{"a1", ""}), common.ErrInvalidArgument)
}

func TestApp_DownloadFailure(t *testing.T) {
	lib := &fakeLibrary{progress: []models.Progress{
		{BytesTotal: -1, Status: models.StatusFailed, Err: common.ErrTransientNetwork},
	}}
	app, out := newApp(lib, "")

	require.NoError(t, app.Download(context.Background(), []string{"a1", "https://x/a1.mp3"}))
	app.downloads.Wait()
	assert.Contains(t, out.String(), "a1: failed: transient network error")
}

func TestApp_Playback(t *testing.T) {
	lib := &fakeLibrary{}
	app, out := newApp(lib, "")
	ctx := context.Background()

	require.NoError(t, app.Play(ctx, []string{"a1"}))
	assert.Equal(t, models.StatePlaying, lib.session.State)
	assert.Contains(t, out.String(), "a1 playing [local]")
	assert.Equal(t, "(a1 playing 0/60s)", app.getStatus())

	require.NoError(t, app.Seek([]string{"30"}))
	assert.Equal(t, 30.0, lib.session.PositionSeconds)
	require.ErrorIs(t, app.Seek([]string{"soon"}), errUsage)

	require.NoError(t, app.Rate([]string{"1.25"}))
	assert.Equal(t, 1.25, lib.rate)
	require.ErrorIs(t, app.Rate([]string{"0"}), common.ErrInvalidArgument)

	require.NoError(t, app.Pause())
	assert.Equal(t, models.StatePaused, lib.session.State)
	require.NoError(t, app.Resume())
	require.NoError(t, app.Retry(ctx))
	require.NoError(t, app.Status(nil))

	require.NoError(t, app.Stop())
	assert.Equal(t, "", app.getStatus())
}

func TestApp_PlayGenerating(t *testing.T) {
	lib := &fakeLibrary{}
	app, out := newApp(lib, "")

	require.NoError(t, app.Play(context.Background(), []string{"gen"}))
	assert.Equal(t, models.StateGenerating, lib.session.State, "nothing is played until the source is ready")
	assert.Contains(t, out.String(), "being generated")
}

func TestApp_PlayError(t *testing.T) {
	lib := &fakeLibrary{playErr: errors.New("boom")}
	app, _ := newApp(lib, "")
	require.Error(t, app.Play(context.Background(), []string{"a1"}))
}

func TestApp_ListAndSize(t *testing.T) {
	at := time.Now().Add(-time.Hour)
	lib := &fakeLibrary{records: []models.AudioRecord{
		{ID: "a1", Status: models.StatusDownloaded, FileSizeBytes: 2_000_000, DownloadedAt: &at, Title: "First"},
		{ID: "a2", Status: models.StatusFailed},
	}}
	app, out := newApp(lib, "")

	require.NoError(t, app.List())
	require.NoError(t, app.Size())

	text := out.String()
	assert.Contains(t, text, "a1")
	assert.Contains(t, text, "2.0 MB")
	assert.Contains(t, text, "First")
	assert.Contains(t, text, "a2")
	assert.Contains(t, text, "1 items, 2.0 MB")
}

func TestApp_CancelAndRemove(t *testing.T) {
	lib := &fakeLibrary{}
	app, out := newApp(lib, "n\ny\n")
	ctx := context.Background()

	require.NoError(t, app.Cancel([]string{"a1"}))
	require.NoError(t, app.Cancel([]string{"zz"}))
	assert.Contains(t, out.String(), "no download running for zz")

	require.NoError(t, app.Remove(ctx, []string{"a1"}))
	assert.Equal(t, []string{"a1"}, lib.removed)

	require.NoError(t, app.RemoveAll(ctx))
	assert.Zero(t, lib.removeAll, "declined")
	require.NoError(t, app.RemoveAll(ctx))
	assert.Equal(t, 1, lib.removeAll)
}

func TestApp_Run(t *testing.T) {
	lib := &fakeLibrary{}
	app, out := newApp(lib, "play a1\nstatus\nexit\n")

	app.Run(context.Background())
	assert.Contains(t, out.String(), "AudioKeeper")
	assert.Contains(t, out.String(), "ak (a1 playing 0/60s)> ")
	assert.Contains(t, out.String(), "Bye!")
}
