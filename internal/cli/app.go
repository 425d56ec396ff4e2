package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

// Library is the part of services.Library the shell drives.
type Library interface {
	RequestDownload(ctx context.Context, itemID, remoteURL, title, ownerID string) (<-chan models.Progress, error)
	CancelDownload(itemID string) bool
	RequestPlayback(ctx context.Context, itemID, ownerID string) (models.Session, error)
	Play(ctx context.Context) (models.Session, error)
	Pause() (models.Session, error)
	Resume() (models.Session, error)
	Stop() models.Session
	Seek(sec float64) (models.Session, error)
	SetRate(rate float64) (models.Session, error)
	Retry(ctx context.Context) (models.Session, error)
	Session() models.Session
	Status(itemID string) models.Status
	Records() []models.AudioRecord
	ListDownloaded() []models.AudioRecord
	TotalDownloadedBytes() int64
	RemoveDownload(ctx context.Context, itemID string) error
	RemoveAllDownloads(ctx context.Context) error
}

type App struct {
	lib     Library
	ownerID string
	out     io.Writer
	reader  *bufio.Reader
	log     logging.Logger

	// outMu serializes writes from background download reporters.
	outMu     sync.Mutex
	downloads sync.WaitGroup
}

func NewApp(lib Library, ownerID string, in io.Reader, out io.Writer, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop()
	}
	return &App{
		lib:     lib,
		ownerID: ownerID,
		out:     out,
		reader:  bufio.NewReader(in),
		log:     log,
	}
}

// Write lets prompts share the output with the download reporters.
func (a *App) Write(p []byte) (int, error) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	return a.out.Write(p)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a, format, args...)
}

// getStatus is shown in the prompt.
func (a *App) getStatus() string {
	s := a.lib.Session()
	if s.State == models.StateIdle {
		return ""
	}
	switch s.State {
	case models.StatePlaying, models.StatePaused:
		return fmt.Sprintf("(%s %s %.0f/%.0fs)", s.ItemID, s.State, s.PositionSeconds, s.DurationSeconds)
	default:
		return fmt.Sprintf("(%s %s)", s.ItemID, s.State)
	}
}

// Run reads commands until EOF, exit or ctx is done, then waits for the
// download reporters to finish.
func (a *App) Run(ctx context.Context) {
	a.log.Debug(ctx, "shell started", "owner_id", a.ownerID)
	a.printf("AudioKeeper (type 'help' for commands)\n")
	runREPL(ctx, a, a.getStatus, a.reader)
	a.downloads.Wait()
}
