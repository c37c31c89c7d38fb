package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ulwgl/pkg/cli"
	"ulwgl/pkg/command"
	"ulwgl/pkg/config"
	"ulwgl/pkg/display"
	"ulwgl/pkg/downloader"
	"ulwgl/pkg/gamedrive"
	"ulwgl/pkg/logs"
	"ulwgl/pkg/prefix"
	"ulwgl/pkg/resolver"
	"ulwgl/pkg/runtime"
	"ulwgl/pkg/subreaper"
	"ulwgl/pkg/supervisor"
)

func main() {
	code, err := launch(context.Background(), os.Args[1:])
	if err != nil {
		if errors.Is(err, cli.ErrUsage) {
			cli.Usage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// launch wires one run end to end: parse, resolve, reconcile the prefix,
// wrap and supervise. The returned code is the child's exit code.
func launch(ctx context.Context, args []string) (int, error) {
	// Ambient state is captured exactly once; everything downstream
	// works from this snapshot.
	environ := captureEnviron()

	log := logs.New(os.Stderr, environ[logs.EnvVar])
	log = log.With().Str("run", uuid.NewString()).Logger()

	res, err := cli.Parse(args)
	if err != nil {
		return 0, err
	}
	if res.Help {
		cli.Usage(os.Stdout)
		return 0, nil
	}

	paths, err := config.Init()
	if err != nil {
		return 0, err
	}

	disp := display.NewConsole()
	defer disp.Close()
	if environ[logs.EnvVar] == logs.LevelDebug {
		disp.SetVerbose(true)
	}

	rt := runtime.NewManager(*paths, downloader.NewDefaultDownloader(), disp, log)
	rv := resolver.New(paths, rt, log)

	resolution, err := rv.Resolve(ctx, &resolver.Request{
		Exe:        res.Exe,
		Opts:       res.Opts,
		ConfigPath: res.ConfigPath,
		Verb:       res.Verb,
		Environ:    environ,
	})
	if err != nil {
		return 0, err
	}
	debugEnv(log, resolution.Env)

	if err := prefix.Setup(resolution.Env[config.KeyWinePrefix], paths.User, log); err != nil {
		return 0, err
	}

	gamedrive.Enable(resolution.Env, environ, log)

	sub := subreaper.Select(resolution.UseSystemd, resolution.Env[config.KeyLauncherID], paths.LauncherLocal, log)

	vector, err := command.Build(resolution.Env, resolution.Opts, *paths)
	if err != nil {
		return 0, err
	}

	return supervisor.Run(ctx, supervisor.Config{
		Command:    sub.Wrap(vector),
		Env:        resolution.Env,
		Paths:      *paths,
		Subreaper:  sub,
		Gamescope:  resolution.Gamescope,
		UseSystemd: resolution.UseSystemd,
		Log:        log,
	})
}

func captureEnviron() map[string]string {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	return environ
}

func debugEnv(log zerolog.Logger, env config.Env) {
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	for _, kv := range env.Environ() {
		log.Debug().Msg(kv)
	}
}
