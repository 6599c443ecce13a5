package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gazekeys/internal/config"
	"github.com/teslashibe/go-gazekeys/pkg/calibration"
	"github.com/teslashibe/go-gazekeys/pkg/input"
	"github.com/teslashibe/go-gazekeys/pkg/render"
)

var (
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFCC00"))
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := newViper(cmd)
		if err != nil {
			return err
		}
		_, warnings, verr := config.Parse(v)

		if path := v.ConfigFileUsed(); path != "" {
			fmt.Printf("# %s\n", path)
		} else {
			fmt.Println("# defaults and environment only")
		}

		keys := v.AllKeys()
		sort.Strings(keys)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			val := v.Get(k)
			if k == "input.mqtt.password" && v.GetString(k) != "" {
				val = "********"
			}
			fmt.Fprintf(w, "%s\t%v\n", keyStyle.Render(k), val)
		}
		w.Flush()

		for _, warn := range warnings {
			fmt.Println(warnStyle.Render("⚠️  " + warn.Error()))
		}
		return verr
	},
}

var configCalibrationsCmd = &cobra.Command{
	Use:   "calibrations",
	Short: "List saved calibration records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := calibration.NewJSONStore(cfg.CalibrationPath)
		if err != nil {
			return err
		}

		names := store.Names()
		if len(names) == 0 {
			fmt.Println("No calibrations saved. Run \"gazekeys calibrate\".")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tBASELINE\tFRAME\tSAVED")
		fmt.Fprintln(w, "----\t--------\t-----\t-----")
		for _, name := range names {
			rec, err := store.Load(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%.0f,%.0f\t%dx%d\t%s\n", name, rec.BaselineX, rec.BaselineY,
				rec.FrameWidth, rec.FrameHeight, rec.Timestamp.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List input and render backends",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println("Input backends on this platform:")
		for _, b := range input.AvailableBackends() {
			fmt.Printf("  %s\n", b)
		}
		fmt.Println("Render backends:")
		for _, b := range render.AllBackends() {
			fmt.Printf("  %s\n", b)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configCalibrationsCmd)
	rootCmd.AddCommand(configCmd, backendsCmd)
}
