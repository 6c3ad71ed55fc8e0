package cmd

import (
	"sitegen/core"
)

// Build runs every registered generator once
func Build(ctx *core.Context) error {
	results, err := ctx.Build(core.TriggerBuild)
	logResults(results)
	return err
}

// Generate runs a single generator by name
func Generate(ctx *core.Context, name string) error {
	pctx := core.NewPluginContext(&ctx.Config, ctx.FileManager, core.TriggerBuild)
	result, err := ctx.PluginManager.Run(name, pctx)
	if result != nil {
		logResults([]*core.PluginResult{result})
	}
	core.Info("files", "stats", ctx.FileManager.ResetStats().String())
	return err
}

func logResults(results []*core.PluginResult) {
	for _, result := range results {
		if result == nil || !result.Success || result.Output == "" {
			continue
		}
		core.Info("wrote", "output", result.Output, "items", result.Items, "errors", result.ItemErrors)
	}
}
