package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neurodesk/blockrender/pkg/blockrender"
	"github.com/neurodesk/blockrender/pkg/config"
	"github.com/neurodesk/blockrender/pkg/dtl"
)

var configPath string
var templateDirs []string
var verbose bool

var rootCmd = cobra.Command{
	Use:          "renderblock",
	Short:        "Render a single block from an inheriting template",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var renderCmd = cobra.Command{
	Use:   "render TEMPLATE...",
	Short: "Render one block from the first loadable template",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		block, _ := cmd.Flags().GetString("block")
		dataFile, _ := cmd.Flags().GetString("data")
		sets, _ := cmd.Flags().GetStringArray("set")

		setup, err := loadSetup()
		if err != nil {
			return err
		}
		data, err := loadData(dataFile, sets)
		if err != nil {
			return err
		}
		resp, err := setup.Renderer.RenderBlock(args, block, data, nil)
		if err != nil {
			return err
		}
		slog.Debug("rendered", "template", resp.Template.TemplateName(), "block", block)
		_, err = resp.WriteTo(cmd.OutOrStdout())
		return err
	},
}

var blocksCmd = cobra.Command{
	Use:   "blocks TEMPLATE...",
	Short: "List the blocks the first loadable template can render and where they are defined",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := loadSetup()
		if err != nil {
			return err
		}
		tpl, err := setup.Engine.SelectTemplate(args)
		if err != nil {
			return err
		}
		infos, err := blockrender.Blocks(tpl, setup.Engine.NewContext(nil))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BLOCK\tTEMPLATE\tDEFINITIONS")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%d\n", info.Name, info.Template, info.Definitions)
		}
		return w.Flush()
	},
}

var astCmd = cobra.Command{
	Use:   "ast TEMPLATE...",
	Short: "Print the parsed node tree of the first loadable template",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := loadSetup()
		if err != nil {
			return err
		}
		tpl, err := setup.Engine.SelectTemplate(args)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), dtl.Pretty(tpl.Root))
		return nil
	},
}

// loadSetup reads the config file. A missing file at the default path
// falls back to the default configuration.
func loadSetup() (*config.Setup, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || rootCmd.PersistentFlags().Changed("config") {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		slog.Debug("no config file, using defaults", "path", configPath)
		cfg = config.Default()
	}
	if len(templateDirs) > 0 {
		cfg.TemplateDirs = append(append([]string(nil), templateDirs...), cfg.TemplateDirs...)
	}
	return cfg.Build()
}

// loadData merges the YAML (or JSON) data file with key=value overrides.
// Override values are decoded as YAML scalars, so numbers and booleans keep
// their type.
func loadData(path string, sets []string) (map[string]any, error) {
	data := map[string]any{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading data: %w", err)
		}
		if err := yaml.Unmarshal(b, &data); err != nil {
			return nil, fmt.Errorf("parsing data %s: %w", path, err)
		}
	}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		var val any
		if err := yaml.Unmarshal([]byte(raw), &val); err != nil || val == nil {
			val = raw
		}
		data[key] = val
	}
	return data, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "renderblock.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringArrayVar(&templateDirs, "template-dir", nil, "Additional template directory, searched first")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	renderCmd.Flags().String("block", "", "Name of the block to render")
	renderCmd.Flags().String("data", "", "YAML or JSON file with template variables")
	renderCmd.Flags().StringArray("set", []string{}, "Set a template variable as KEY=VALUE")
	_ = renderCmd.MarkFlagRequired("block")
	rootCmd.AddCommand(&renderCmd)

	rootCmd.AddCommand(&blocksCmd)
	rootCmd.AddCommand(&astCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
