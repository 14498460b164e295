package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkeye/classroom/internal/adapters/devices"
	"github.com/dkeye/classroom/internal/adapters/messaging"
	"github.com/dkeye/classroom/internal/adapters/realtime"
	"github.com/dkeye/classroom/internal/adapters/signaling"
	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/tiles"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	joinName      string
	joinRegion    string
	staticDevices bool
)

var joinCmd = &cobra.Command{
	Use:   "join <title>",
	Short: "Join (or create) a meeting and open an interactive session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runJoin(ctx, domain.MeetingTitle(args[0]), os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	joinCmd.Flags().StringVarP(&joinName, "name", "n", "", "display name")
	joinCmd.Flags().StringVar(&joinRegion, "region", "", "media region (default from config)")
	joinCmd.Flags().BoolVar(&staticDevices, "static-devices", false, "use a fixed device list instead of host devices")
	_ = joinCmd.MarkFlagRequired("name")
}

// printBinder reports where each remote tile is rendered.
type printBinder struct{}

func (printBinder) BindVideoTile(tileID domain.TileID, slot int) {
	log.Debug().Str("module", "cli").Int("tile", int(tileID)).Int("slot", slot).Msg("tile bound")
}

func hostDevices() core.DeviceLister {
	if staticDevices {
		return devices.NewStatic(
			domain.DeviceInfo{DeviceID: "default-mic", Kind: domain.AudioInput, Label: "Default microphone"},
			domain.DeviceInfo{DeviceID: "default-speaker", Kind: domain.AudioOutput, Label: "Default speaker"},
			domain.DeviceInfo{DeviceID: "default-camera", Kind: domain.VideoInput, Label: "Default camera"},
		)
	}
	return devices.NewMediaDevices()
}

func runJoin(ctx context.Context, title domain.MeetingTitle, in io.Reader, out io.Writer) error {
	c := cfg.Client
	sig, err := signaling.NewClient(c.BaseURL, signaling.WithTimeout(c.RequestTimeout))
	if err != nil {
		return err
	}
	socketOpts := []messaging.Option{messaging.WithReconnect(c.ReconnectInitial, c.ReconnectMax)}

	facade := app.NewFacade(app.Params{
		Signaling: sig,
		Sessions: &realtime.Factory{
			EventsURL:   c.EventsURL,
			Devices:     hostDevices(),
			OpenTimeout: c.OpenTimeout,
			Socket:      socketOpts,
		},
		MessagingURL: c.MessagingURL,
		OpenTimeout:  c.OpenTimeout,
		Socket:       socketOpts,
	})

	group := tiles.NewVideoGroup(printBinder{})
	facade.AddVideoTileObserver(group)
	group.Subscribe(func(l tiles.Layout) {
		fmt.Fprintf(out, "* %d remote video(s), %s tiles\n", l.Count, l.Size)
	})

	region := joinRegion
	if region == "" {
		region = c.Region
	}
	if err := facade.CreateRoom(ctx, title, joinName, region); err != nil {
		return err
	}
	if err := facade.JoinRoom(ctx); err != nil {
		facade.LeaveRoom(context.Background(), false)
		return err
	}
	if err := facade.JoinRoomMessaging(ctx); err != nil {
		facade.LeaveRoom(context.Background(), false)
		return err
	}

	// Roster updates are delivered one at a time, so known needs no lock.
	known := map[domain.AttendeeID]bool{}
	facade.SubscribeToRosterUpdates(func(r domain.Roster) {
		for id, e := range r {
			if !known[id] && e.Name != "" {
				known[id] = true
				fmt.Fprintf(out, "* %s joined\n", e.Name)
			}
		}
	})
	facade.SubscribeToMessages(func(m domain.Message) {
		if text, ok := chatText(m); ok {
			fmt.Fprintf(out, "[%s] %s\n", displayName(m.Name), text)
		}
	})
	fmt.Fprintf(out, "joined %q as %s, type /help for commands\n", title, joinName)

	r := &repl{call: facade, layout: group.Layout, out: out}
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer facade.LeaveRoom(context.Background(), false)
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errInputClosed
				}
				done, err := r.exec(gctx, line)
				if err != nil {
					fmt.Fprintf(out, "! %v\n", err)
				}
				if done {
					return errLeft
				}
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(deviceRefreshPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := facade.RefreshDevices(gctx); err != nil {
					log.Debug().Err(err).Str("module", "cli").Msg("device refresh")
				}
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errLeft) && !errors.Is(err, errInputClosed) {
		return err
	}
	return nil
}

const deviceRefreshPeriod = 5 * time.Second

var (
	errLeft        = errors.New("left meeting")
	errInputClosed = errors.New("input closed")
)

func displayName(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}
