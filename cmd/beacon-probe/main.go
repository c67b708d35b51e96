// Command beacon-probe is a manual smoke tester for the SDK: it initializes
// against a real or local collector, emits a handful of events of every
// category and shuts down cleanly. Useful for verifying keys, connectivity
// and the on-disk outbox without embedding the SDK in a game.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	beacon "github.com/gamesignals/beacon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:          "beacon-probe",
		Short:        "Smoke tester for the beacon analytics SDK",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("game-key", "", "game key (32 hex characters)")
	root.PersistentFlags().String("secret-key", "", "secret key (40 hex characters)")
	root.PersistentFlags().String("collector-url", "", "override the collector base URL")
	root.PersistentFlags().String("writable-path", "", "directory for the SDK database")
	root.PersistentFlags().Bool("verbose", false, "enable verbose SDK logging")

	_ = v.BindPFlags(root.PersistentFlags())
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newSendCmd(v))
	root.AddCommand(newSessionCmd(v))
	return root
}

func buildSDK(v *viper.Viper) (*beacon.SDK, error) {
	gameKey := v.GetString("game-key")
	secretKey := v.GetString("secret-key")
	if gameKey == "" || secretKey == "" {
		return nil, fmt.Errorf("both --game-key and --secret-key are required")
	}

	var opts []beacon.Option
	if url := v.GetString("collector-url"); url != "" {
		opts = append(opts, beacon.WithCollectorURL(url))
	}

	sdk := beacon.New(opts...)
	sdk.SetEnabledInfoLog(true)
	if v.GetBool("verbose") {
		sdk.SetEnabledVerboseLog(true)
	}
	if path := v.GetString("writable-path"); path != "" {
		sdk.ConfigureWritablePath(path)
	}
	sdk.ConfigureBuild("probe 1.0")
	sdk.Initialize(gameKey, secretKey)
	return sdk, nil
}

func newSendCmd(v *viper.Viper) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Emit one event of every category and flush",
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, err := buildSDK(v)
			if err != nil {
				return err
			}

			sdk.ConfigureAvailableResourceCurrencies([]string{"gems", "gold"})
			sdk.ConfigureAvailableResourceItemTypes([]string{"boost", "lives"})

			sdk.AddDesignEvent("probe:design", nil)
			sdk.AddDesignEventWithValue("probe:design:value", 42, nil)
			sdk.AddBusinessEvent("USD", 99, "probe", "starter_pack", "shop", nil)
			sdk.AddResourceEvent(beacon.FlowSource, "gems", 10, "boost", "speedup", nil)
			sdk.AddProgressionEvent(beacon.ProgressionStart, "world01", "level01", "", nil)
			sdk.AddProgressionEventWithScore(beacon.ProgressionComplete, "world01", "level01", "", 1000, nil)
			sdk.AddErrorEvent(beacon.SeverityInfo, "probe error event", map[string]any{"probe": 1})

			// Give the flush timer a chance to run before closing down.
			time.Sleep(wait)
			sdk.OnQuit()
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to let the flush timer run")
	return cmd
}

func newSessionCmd(v *viper.Viper) *cobra.Command {
	var length time.Duration

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run one session of the given length, then end it",
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, err := buildSDK(v)
			if err != nil {
				return err
			}
			time.Sleep(length)
			sdk.OnQuit()
			return nil
		},
	}
	cmd.Flags().DurationVar(&length, "length", 5*time.Second, "session length")
	return cmd
}
