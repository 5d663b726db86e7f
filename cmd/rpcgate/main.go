// Command rpcgate runs the JSON-RPC gateway: per-route parsing, guard,
// whitelist, compute-unit pricing, rate limiting, monthly quota
// charging, and websocket MITM proxying in front of a single upstream
// per route.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/unifra-network/rpcgate"
)

func main() {
	app := &cli.App{
		Name:  "rpcgate",
		Usage: "JSON-RPC gateway with CU accounting and rate limiting",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "gateway.toml", Usage: "path to gateway.toml"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setLogLevel(c.String("log-level"))

	var cfg rpcgate.GatewayConfig
	if _, err := toml.DecodeFile(c.String("config"), &cfg); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	srv, shutdown, err := rpcgate.Start(&cfg)
	if err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	defer shutdown()

	rpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.RPCPort)
	wsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WSPort)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.RPCListenAndServe(rpcAddr) }()
	go func() { errCh <- srv.WSListenAndServe(wsAddr) }()

	return <-errCh
}

// setLogLevel wires go-ethereum's structured logger to a slog JSON
// handler, exactly as the teacher's proxyd does at startup.
func setLogLevel(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	log.SetDefault(log.NewLogger(handler))
}
