package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matheus3301/quickchat/internal/api"
	"github.com/matheus3301/quickchat/internal/client"
	"github.com/matheus3301/quickchat/internal/config"
	"github.com/matheus3301/quickchat/internal/logging"
	"github.com/matheus3301/quickchat/internal/session"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyProfile
	contextKeyClient
	contextKeyLogger
	contextKeyCredentials
)

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func getProfile(ctx *cli.Context) string {
	return ctx.Context.Value(contextKeyProfile).(string)
}

func getClient(ctx *cli.Context) *api.Client {
	return ctx.Context.Value(contextKeyClient).(*api.Client)
}

func getLogger(ctx *cli.Context) *zap.Logger {
	return ctx.Context.Value(contextKeyLogger).(*zap.Logger)
}

func getCredentials(ctx *cli.Context) *session.Credentials {
	return ctx.Context.Value(contextKeyCredentials).(*session.Credentials)
}

func prepareApp(ctx *cli.Context) error {
	cfg, err := config.LoadOrDefault(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	profile := session.Resolve(ctx.String("profile"), cfg)
	if err := session.ValidateName(profile); err != nil {
		return err
	}
	logger := logging.NewCLI(ctx.Bool("verbose"))

	address := ctx.String("address")
	if address == "" {
		address = session.ClientTarget(cfg)
	}
	c, err := api.Dial(address, cfg.Client.Timeout(), logger)
	if err != nil {
		return err
	}
	logger.Debug("using chatd", zap.String("address", address), zap.String("profile", profile))

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyProfile, profile)
	newCtx = context.WithValue(newCtx, contextKeyClient, c)
	newCtx = context.WithValue(newCtx, contextKeyLogger, logger)
	ctx.Context = newCtx
	return nil
}

func closeApp(ctx *cli.Context) error {
	if c, ok := ctx.Context.Value(contextKeyClient).(*api.Client); ok {
		_ = c.Close()
	}
	if logger, ok := ctx.Context.Value(contextKeyLogger).(*zap.Logger); ok {
		_ = logger.Sync()
	}
	return nil
}

// requiresAuth loads the profile's stored token into the client.
func requiresAuth(ctx *cli.Context) error {
	creds, err := session.LoadCredentials(getProfile(ctx))
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	if creds == nil || creds.Token == "" {
		return fmt.Errorf("profile %q is not signed in: run 'chatctl signin' first", getProfile(ctx))
	}
	getClient(ctx).SetToken(creds.Token)
	ctx.Context = context.WithValue(ctx.Context, contextKeyCredentials, creds)
	return nil
}

// openSession resumes the stored token. With load set it also fetches every
// message and starts the live feed.
func openSession(ctx *cli.Context, load bool) (*client.Session, error) {
	s := client.New(getClient(ctx), nil, getLogger(ctx))
	if err := s.Resume(ctx.Context, getCredentials(ctx).Token); err != nil {
		s.Close()
		return nil, err
	}
	if load {
		if err := s.Open(ctx.Context); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func main() {
	app := &cli.App{
		Name:  "chatctl",
		Usage: "Command line client for a QuickChat server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: session.ConfigPath(),
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Profile name (overrides config default)",
				EnvVars: []string{"QUICKCHAT_PROFILE"},
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "chatd address (overrides client.address)",
				EnvVars: []string{"QUICKCHAT_ADDRESS"},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output in JSON format",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug output to stderr",
			},
		},
		Before: prepareApp,
		After:  closeApp,
		Commands: []*cli.Command{
			signupCommand,
			signinCommand,
			signoutCommand,
			whoamiCommand,
			profileCommand,
			usersCommand,
			contactsCommand,
			chatsCommand,
			threadCommand,
			sendCommand,
			readCommand,
			deleteCommand,
			searchCommand,
			watchCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
