package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/adapters/rtc"
	"github.com/dkeye/Ring/internal/call"
	"github.com/dkeye/Ring/internal/client"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/media"
)

type Options struct {
	Server      string        `long:"server" description:"Server URL" default:"http://localhost:8080"`
	User        string        `long:"user" short:"u" description:"User ID" required:"true"`
	NoCamera    bool          `long:"no-camera" description:"Join with audio only"`
	RingTimeout time.Duration `long:"ring-timeout" description:"Give up ringing after (default: server's ring_timeout)"`
	ICEServers  []string      `long:"ice" description:"ICE server URL, repeatable (default: server's ice_servers)"`
	HangupAfter time.Duration `long:"hangup-after" description:"Hang up this long after the call becomes active"`
	Debug       bool          `long:"debug" description:"Verbose logs"`
}

type CallCommand struct {
	Args struct {
		Peer string `positional-arg-name:"peer" description:"User to call"`
	} `positional-args:"yes" required:"yes"`
}

func (c *CallCommand) Execute([]string) error {
	return session(func(p *call.Phone) error { return p.Dial(domain.UserID(c.Args.Peer)) }, false)
}

type AnswerCommand struct {
	Reject bool `long:"reject" description:"Reject instead of accepting"`
}

func (c *AnswerCommand) Execute([]string) error {
	return session(nil, c.Reject)
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("call", "Call a user", "Dials peer and stays in the call until it ends.", &CallCommand{})
	parser.AddCommand("answer", "Wait for a call", "Answers the first incoming call.", &AnswerCommand{})

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// session connects, runs one call and returns when it is over.
func session(start func(*call.Phone) error, reject bool) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	user, err := domain.ParseUserID(opts.User)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sig, err := client.Dial(ctx, opts.Server, user)
	if err != nil {
		return err
	}
	defer sig.Close()

	settings := sig.Settings()
	ring := opts.RingTimeout
	if ring <= 0 {
		ring = settings.RingTimeout()
	}
	iceServers := opts.ICEServers
	if len(iceServers) == 0 {
		iceServers = settings.ICEServers
	}

	peers, err := rtc.NewFactory(user, iceServers)
	if err != nil {
		return err
	}

	var phone *call.Phone
	var hangup *time.Timer
	phone = call.NewPhone(call.Options{
		Self:        user,
		Signaler:    sig,
		Media:       media.NewController(&media.SampleDevice{NoCamera: opts.NoCamera}),
		NewPeer:     peers.NewPeer,
		Constraints: media.Constraints{Audio: true, Video: !opts.NoCamera},
		RingTimeout: ring,
		Hooks: call.Hooks{
			OnState: func(s call.Snapshot) {
				log.Info().Str("module", "cli").Str("state", s.State.String()).Str("peer", s.Peer.String()).
					Bool("remote_video", s.RemoteVideo).Msg("call")
				switch s.State {
				case call.Incoming:
					if reject {
						go phone.Reject()
					} else {
						go phone.Accept()
					}
				case call.Active:
					if opts.HangupAfter > 0 && hangup == nil {
						hangup = time.AfterFunc(opts.HangupAfter, func() { _ = phone.HangUp() })
					}
				case call.Ended:
					log.Info().Str("module", "cli").Str("reason", s.EndReason).AnErr("err", s.Err).Msg("call over")
					cancel()
				}
			},
			OnError: func(err error) {
				log.Warn().Err(err).Str("module", "cli").Msg("call error")
			},
		},
	})

	if start != nil {
		// Queued until the loop in Run picks it up.
		if err := start(phone); err != nil {
			return err
		}
	}

	err = sig.Run(ctx, phone, client.Handler{
		Presence: func(online []domain.UserID) {
			log.Info().Str("module", "cli").Interface("online", online).Msg("presence")
		},
		Chat: func(from domain.UserID, msg string) {
			log.Info().Str("module", "cli").Str("from", from.String()).Str("msg", msg).Msg("chat")
		},
	})
	if err != nil {
		log.Error().Err(err).Str("module", "cli").Msg("signaling lost")
	}
	if hangup != nil {
		hangup.Stop()
	}
	return err
}
