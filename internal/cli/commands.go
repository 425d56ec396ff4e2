package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/dustin/go-humanize"
)

func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("download <id> <url> [title]")
	}
	itemID, url := args[0], args[1]
	title := strings.Join(args[2:], " ")

	ch, err := a.lib.RequestDownload(ctx, itemID, url, title, a.ownerID)
	if err != nil {
		return err
	}
	a.printf("downloading %s\n", itemID)

	a.downloads.Add(1)
	go func() {
		defer a.downloads.Done()
		a.report(itemID, ch)
	}()
	return nil
}

// report prints every quarter of progress and the outcome.
func (a *App) report(itemID string, ch <-chan models.Progress) {
	quarter := 0
	for p := range ch {
		switch p.Status {
		case models.StatusDownloading:
			if q := int(p.Fraction() * 4); q > quarter && q < 4 {
				quarter = q
				a.printf("%s: %d%% (%s)\n", itemID, q*25, humanize.Bytes(uint64(p.BytesWritten)))
			}
		case models.StatusDownloaded:
			a.printf("%s: downloaded\n", itemID)
		case models.StatusFailed:
			a.printf("%s: failed: %v\n", itemID, p.Err)
		}
	}
}

func (a *App) Cancel(args []string) error {
	if len(args) != 1 {
		return usage("cancel <id>")
	}
	if !a.lib.CancelDownload(args[0]) {
		a.printf("no download running for %s\n", args[0])
	}
	return nil
}

func (a *App) printSession(s models.Session) {
	switch s.State {
	case models.StateIdle:
		a.printf("idle\n")
	case models.StatePlaying, models.StatePaused:
		a.printf("%s %s [%s] %.1f/%.1fs x%.2g\n", s.ItemID, s.State, s.SourceKind, s.PositionSeconds, s.DurationSeconds, s.PlaybackRate)
	case models.StateError:
		a.printf("%s error: %s\n", s.ItemID, s.LastError)
	case models.StateGenerating:
		a.printf("%s: audio is being generated, it will be ready shortly\n", s.ItemID)
	default:
		a.printf("%s %s [%s]\n", s.ItemID, s.State, s.SourceKind)
	}
}

// Play starts a session for the given item and plays it, or plays the
// current session when no item is given.
func (a *App) Play(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usage("play [id]")
	}
	if len(args) == 1 {
		s, err := a.lib.RequestPlayback(ctx, args[0], a.ownerID)
		if err != nil {
			return err
		}
		if s.State != models.StateReady {
			a.printSession(s)
			return nil
		}
	}

	s, err := a.lib.Play(ctx)
	if err != nil {
		return err
	}
	a.printSession(s)
	return nil
}

func (a *App) Pause() error {
	s, err := a.lib.Pause()
	if err != nil {
		return err
	}
	a.printSession(s)
	return nil
}

func (a *App) Resume() error {
	s, err := a.lib.Resume()
	if err != nil {
		return err
	}
	a.printSession(s)
	return nil
}

func (a *App) Stop() error {
	a.printSession(a.lib.Stop())
	return nil
}

func parseFloatArg(args []string, usageText string) (float64, error) {
	if len(args) != 1 {
		return 0, usage(usageText)
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, usage(usageText)
	}
	return v, nil
}

func (a *App) Seek(args []string) error {
	sec, err := parseFloatArg(args, "seek <seconds>")
	if err != nil {
		return err
	}
	s, err := a.lib.Seek(sec)
	if err != nil {
		return err
	}
	a.printSession(s)
	return nil
}

func (a *App) Rate(args []string) error {
	rate, err := parseFloatArg(args, "rate <x>")
	if err != nil {
		return err
	}
	s, err := a.lib.SetRate(rate)
	if err != nil {
		return err
	}
	a.printSession(s)
	return nil
}

func (a *App) Retry(ctx context.Context) error {
	s, err := a.lib.Retry(ctx)
	if err != nil {
		return err
	}
	a.printSession(s)
	return nil
}

func (a *App) Status(args []string) error {
	switch len(args) {
	case 0:
		a.printSession(a.lib.Session())
	case 1:
		a.printf("%s: %s\n", args[0], a.lib.Status(args[0]))
	default:
		return usage("status [id]")
	}
	return nil
}

func (a *App) List() error {
	recs := a.lib.Records()
	if len(recs) == 0 {
		a.printf("no items\n")
		return nil
	}
	for _, r := range recs {
		line := fmt.Sprintf("%-20s %-12s", r.ID, r.Status)
		if r.Status == models.StatusDownloaded {
			line += " " + humanize.Bytes(uint64(r.FileSizeBytes))
			if r.DownloadedAt != nil {
				line += " " + humanize.Time(*r.DownloadedAt)
			}
		}
		if r.Title != "" {
			line += "  " + r.Title
		}
		a.printf("%s\n", line)
	}
	return nil
}

func (a *App) Size() error {
	a.printf("%d items, %s\n", len(a.lib.ListDownloaded()), humanize.Bytes(uint64(a.lib.TotalDownloadedBytes())))
	return nil
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("remove <id>")
	}
	if err := a.lib.RemoveDownload(ctx, args[0]); err != nil {
		return err
	}
	a.printf("%s removed\n", args[0])
	return nil
}

func (a *App) RemoveAll(ctx context.Context) error {
	if !Confirm(a.reader, "Remove all downloads?", a) {
		return nil
	}
	if err := a.lib.RemoveAllDownloads(ctx); err != nil {
		return err
	}
	a.printf("all downloads removed\n")
	return nil
}
