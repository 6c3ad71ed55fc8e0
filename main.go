package main

import (
	"fmt"
	"os"
	"sitegen/cmd"
	"sitegen/core"
	"sitegen/plugins"
)

func registerPlugins(ctx *core.Context) error {
	pm := ctx.PluginManager
	pm.RegisterPlugin(plugins.NewPostsPlugin(&ctx.Config))
	pm.RegisterPlugin(plugins.NewBooksPlugin(&ctx.Config))
	pm.RegisterPlugin(plugins.NewSitemapPlugin(&ctx.Config))

	if ctx.Config.Search.Enabled {
		search, err := plugins.NewSearchPlugin(&ctx.Config)
		if err != nil {
			return fmt.Errorf("failed to create search index: %w", err)
		}
		pm.RegisterPlugin(search)
		ctx.Search = search
	}

	ctx.Renderer = plugins.NewMarkdownRenderer(plugins.DefaultHighlightStyle)

	core.Debug("registered generators", "generators", pm.ListPlugins())
	return nil
}

func run(ctx *core.Context) error {
	switch ctx.Config.Mode {
	case core.ModeBuild:
		return cmd.Build(ctx)
	case core.ModePosts, core.ModeBooks, core.ModeSitemap:
		return cmd.Generate(ctx, ctx.Config.Mode)
	case core.ModeWatch:
		return cmd.Watch(ctx)
	case core.ModeServe:
		return cmd.Serve(ctx)
	case core.ModeDump:
		return cmd.Dump(ctx, os.Stdout)
	case core.ModeHistory:
		return cmd.History(ctx, os.Stdout)
	}
	return fmt.Errorf("unknown command %q", ctx.Config.Mode)
}

func main() {
	var err error
	var ctx core.Context

	ctx.Config, err = core.ParseCommandLineArguments(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if ctx.Config.Mode == core.ModeVersion {
		cmd.PrintVersion(os.Stdout)
		return
	}

	if err := core.InitializeContext(&ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize context: %v\n", err)
		os.Exit(1)
	}

	if err := registerPlugins(&ctx); err != nil {
		core.Error("failed to register generators", "error", err)
		ctx.Close()
		os.Exit(1)
	}

	err = run(&ctx)
	if cerr := ctx.Close(); cerr != nil {
		core.Warn("failed to release resources", "error", cerr)
	}
	if err != nil {
		core.Error("command failed", "command", ctx.Config.Mode, "error", err)
		os.Exit(1)
	}
}
