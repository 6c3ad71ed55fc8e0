package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sitegen/core"

	"github.com/goccy/go-yaml"
)

// Dump runs the posts or books generator without touching the public tree
// and prints the manifest it would write.
func Dump(ctx *core.Context, w io.Writer) error {
	fm := core.NewFileManager(ctx.Config.Paths.Public)
	fm.DryRun = true

	pctx := core.NewPluginContext(&ctx.Config, fm, core.TriggerDump)
	result, err := ctx.PluginManager.Run(ctx.Config.DumpTarget, pctx)
	if err != nil {
		return err
	}

	var data []byte
	switch ctx.Config.DumpFormat {
	case "json":
		data, err = core.EncodeManifest(result.Manifest)
	default:
		data, err = marshalYAML(result.Manifest)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s manifest: %w", ctx.Config.DumpTarget, err)
	}

	core.Debug("dump", "target", ctx.Config.DumpTarget, "would copy", fm.Stats().String())
	_, err = w.Write(data)
	return err
}

// marshalYAML goes through JSON so the YAML keys match the manifest files
func marshalYAML(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return yaml.JSONToYAML(raw)
}
