package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/quickchat/internal/daemon"
	"github.com/matheus3301/quickchat/internal/session"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

func main() {
	app := &cli.App{
		Name:  "chatd",
		Usage: "QuickChat server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config file", Value: session.ConfigPath()},
			&cli.StringFlag{Name: "data-dir", Usage: "Data directory (overrides server.data_dir)", EnvVars: []string{"QUICKCHAT_DATA_DIR"}},
			&cli.StringFlag{Name: "listen", Usage: "gRPC address, host:port or unix:///path (overrides server.listen)"},
			&cli.StringFlag{Name: "admin-listen", Usage: "Health and metrics address (overrides server.admin_listen)"},
		},
		Action: func(ctx *cli.Context) error {
			app := fx.New(daemon.Module(daemon.Params{
				ConfigPath:  ctx.String("config"),
				DataDir:     ctx.String("data-dir"),
				Listen:      ctx.String("listen"),
				AdminListen: ctx.String("admin-listen"),
			}))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
