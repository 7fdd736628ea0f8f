// Command grab downloads the best video or audio format of a URL from the
// terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"thirdcoast.systems/mediagrab/internal/application"
	"thirdcoast.systems/mediagrab/internal/config"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/service"
	"thirdcoast.systems/mediagrab/pkg/utils/format"
)

type options struct {
	url      string
	kind     media.Kind
	infoOnly bool
	tty      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := pflag.NewFlagSet("grab", pflag.ContinueOnError)
	audio := fs.BoolP("audio", "a", false, "download the best audio-only format")
	infoOnly := fs.BoolP("info", "i", false, "print title and formats, do not download")
	verbose := fs.BoolP("verbose", "v", false, "log engine activity")
	fs.StringP("dir", "d", "", "destination folder (default $DOWNLOAD_DIR)")
	fs.String("ytdlp", "", "path to the yt-dlp binary (default $YTDLP_PATH)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: grab [flags] <url>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Flags override the environment for the keys they name.
	if f := fs.Lookup("dir"); f.Changed {
		_ = viper.BindPFlag("DOWNLOAD_DIR", f)
	}
	if f := fs.Lookup("ytdlp"); f.Changed {
		_ = viper.BindPFlag("YTDLP_PATH", f)
	}

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := options{
		url:      strings.TrimSpace(fs.Arg(0)),
		kind:     media.KindVideo,
		infoOnly: *infoOnly,
		tty:      isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
	if *audio {
		opts.kind = media.KindAudio
	}

	app, err := application.New(ctx, *conf, application.NewYtDlpProvider(ctx, *conf), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	runErr := run(ctx, app.Service, opts, os.Stdout)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = app.Close(closeCtx)
	cancel()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", media.UserMessage(runErr))
		slog.Debug("grab failed", "error", runErr)
		os.Exit(1)
	}
}

// run fetches info, then downloads into the default folder while printing
// progress. Cancelling ctx cancels the download.
func run(ctx context.Context, svc *service.Service, opts options, out io.Writer) error {
	info, err := svc.FetchInfo(ctx, opts.url)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", info.Title)
	if info.Duration > 0 {
		fmt.Fprintf(out, "Duration: %s\n", format.Duration(info.Duration))
	}
	if opts.infoOnly {
		printFormats(out, info.Formats)
		return nil
	}

	folder, err := svc.ChooseDestinationFolder(ctx)
	if err != nil {
		return err
	}

	p := newProgressPrinter(out, opts.tty)
	h, err := svc.StartDownload(ctx, opts.url, opts.kind, folder, p.listen)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		_ = svc.Cancel(h.ID)
		<-p.done
	}
	return p.err()
}

func printFormats(out io.Writer, formats []media.Format) {
	for _, f := range formats {
		size := ""
		if f.Size > 0 {
			size = format.Bytes(f.Size)
		}
		fmt.Fprintf(out, "  %-10s %-6s %-5s %-12s %s\n", f.ID, f.Kind, f.Ext(), f.Note, size)
	}
}
