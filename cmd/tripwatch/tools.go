package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tripwatch/internal/auth"
	"tripwatch/internal/camera"
)

const maxProbedDevices = 8

var listCamerasCmd = &cobra.Command{
	Use:   "list-cameras",
	Short: "List local video devices that can be used as camera sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		devices := probeDevices("/dev/video", maxProbedDevices)
		out := cmd.OutOrStdout()
		if len(devices) == 0 {
			fmt.Fprintln(out, "no video devices found")
			return nil
		}
		for _, d := range devices {
			fmt.Fprintf(out, "%s\t%s\n", d, camera.Classify(d))
		}
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for auth.password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

// probeDevices returns the existing character devices prefix0..prefix(n-1).
func probeDevices(prefix string, n int) []string {
	var found []string
	for i := range n {
		path := fmt.Sprintf("%s%d", prefix, i)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		found = append(found, path)
	}
	return found
}
