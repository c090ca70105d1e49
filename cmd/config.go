package cmd

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/observability"
)

// boolKeys and stringKeys are the preferences whose type is checked on set.
var (
	boolKeys   = map[string]bool{fishing.KeyJitter: true, fishing.KeySoundNotification: true, calibration.CalibrateFlag: true}
	stringKeys = map[string]bool{fishing.KeyActionKey: true, fishing.KeyCollectKey: true}
)

// parseValue decodes value as JSON, falling back to a plain string.
func parseValue(key, value string) (any, error) {
	var v any
	if err := jsoniter.UnmarshalFromString(value, &v); err != nil {
		v = value
	}
	switch {
	case boolKeys[key]:
		if _, ok := v.(bool); !ok {
			return nil, fmt.Errorf("%s takes true or false, got %q", key, value)
		}
	case stringKeys[key]:
		v = value
	}
	return v, nil
}

// newConfigCmd creates the `config` command group that edits persisted preferences.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the persisted preferences",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print a stored value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			kv, err := openKV(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer kv.Close()

			snap, err := kv.Snapshot(ctx)
			if err != nil {
				return err
			}
			raw, ok := snap[args[0]]
			if !ok {
				return fmt.Errorf("key %q is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a value; VALUE is parsed as JSON when possible",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			value, err := parseValue(args[0], args[1])
			if err != nil {
				return err
			}
			kv, err := openKV(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer kv.Close()

			return kv.Set(ctx, args[0], value)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every stored key and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			kv, err := openKV(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer kv.Close()

			snap, err := kv.Snapshot(ctx)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(snap))
			for k := range snap {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, snap[k])
			}
			return nil
		},
	})

	return configCmd
}
