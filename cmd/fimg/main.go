package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"freeimages/settings"
)

var (
	serverURL  string
	password   string
	jsonOutput bool

	remote *settings.Remote
)

func defaultServer() string {
	if s := os.Getenv("FREEIMAGES_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:           "fimg <command>",
	Short:         "Command line client for a FreeImages server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		remote = settings.NewRemote(serverURL)
	},
}

// login signs in when a password was given. Commands that change server
// state call it before their first request.
func login(ctx context.Context) error {
	if password == "" {
		return nil
	}
	if err := remote.Login(ctx, password); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "server base URL")
	rootCmd.PersistentFlags().StringVar(&password, "password", os.Getenv("FREEIMAGES_PASSWORD"), "admin password")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(uploadCmd)
}

func main() {
	logrus.SetLevel(logrus.WarnLevel)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
