package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/promptctl/pkg/hostconfig"
)

var (
	hooksSettings string
	hooksPlugin   string
	hooksCommand  string
	hooksOutput   string
)

var installHooksCmd = &cobra.Command{
	Use:   "install-hooks",
	Short: "Register promptctl for every hook event",
	Long: `Generates the hook registration that routes every known event to promptctl.

With --settings the registration is merged into an existing settings.json.
With --plugin it is written to <dir>/hooks/hooks.json using the plugin root
variable. With --output it is written to the given file. Otherwise it is
printed to stdout.`,
	Args: cobra.NoArgs,
	RunE: runInstallHooks,
}

func runInstallHooks(cmd *cobra.Command, args []string) error {
	command := hooksCommand
	if hooksPlugin != "" && !cmd.Flags().Changed("command") {
		command = hostconfig.PluginCommand
	}
	cfg := hostconfig.Generate(command)
	out := cmd.OutOrStdout()

	switch {
	case hooksSettings != "":
		if err := hostconfig.Install(hooksSettings, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ hooks installed in %s (%d events)\n", hooksSettings, len(cfg.Hooks))
	case hooksPlugin != "":
		path := filepath.Join(hooksPlugin, "hooks", "hooks.json")
		if err := hostconfig.Write(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ wrote %s (%d events)\n", path, len(cfg.Hooks))
	case hooksOutput != "":
		if err := hostconfig.Write(hooksOutput, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ wrote %s (%d events)\n", hooksOutput, len(cfg.Hooks))
	default:
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	return nil
}

func init() {
	installHooksCmd.Flags().StringVar(&hooksSettings, "settings", "", "Merge hooks into this settings.json")
	installHooksCmd.Flags().StringVar(&hooksPlugin, "plugin", "", "Plugin directory to write hooks/hooks.json into")
	installHooksCmd.Flags().StringVar(&hooksCommand, "command", hostconfig.DefaultCommand, "Command the host runs for each event")
	installHooksCmd.Flags().StringVarP(&hooksOutput, "output", "o", "", "Write hooks.json to this path")
	installHooksCmd.MarkFlagsMutuallyExclusive("settings", "plugin", "output")
}
