package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"freeimages/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the server configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the server configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote.Init(cmd.Context())
		doc := remote.Config()
		if jsonOutput {
			return printJSON(doc)
		}
		cf := doc.Storage.Cloudflare
		fmt.Printf("Site:           %s (%s)\n", doc.App.Site.Title, doc.App.Site.URL)
		fmt.Printf("Bucket:         %s\n", valueOrDash(cf.BucketName))
		fmt.Printf("Account:        %s\n", valueOrDash(cf.AccountID))
		fmt.Printf("Public domain:  %s\n", valueOrDash(cf.PublicDomain))
		fmt.Printf("Upload path:    %s\n", doc.Storage.Upload.Path)
		fmt.Printf("Max size:       %g MB\n", doc.Storage.Upload.MaxSize)
		fmt.Printf("Allowed types:  %s\n", strings.Join(doc.Storage.Upload.AllowedTypes, ", "))
		fmt.Printf("Image domains:  %s\n", strings.Join(settings.ImageDomains(doc), ", "))
		fmt.Printf("Storage ready:  %t\n", remote.IsComplete())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <path=value>...",
	Short: "Change configuration values",
	Long: `Change configuration values on the server.

Each argument is a dotted path and a value, for example
  fimg config set storage.cloudflare.bucketName=photos app.images.formats='["image/webp"]'
Values that parse as JSON are sent as such; anything else is sent as a string.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := buildPatch(args)
		if err != nil {
			return err
		}
		if err := login(cmd.Context()); err != nil {
			return err
		}
		doc, err := remote.Update(cmd.Context(), patch)
		if err != nil {
			return fmt.Errorf("updating config: %w", err)
		}
		if jsonOutput {
			return printJSON(doc)
		}
		fmt.Printf("Updated %d value(s)\n", len(args))
		return nil
	},
}

// buildPatch turns "a.b.c=value" arguments into one nested patch.
func buildPatch(args []string) (settings.Patch, error) {
	patch := settings.Patch{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected path=value, got %q", arg)
		}
		parts := strings.Split(key, ".")
		node := map[string]any(patch)
		for _, part := range parts[:len(parts)-1] {
			if part == "" {
				return nil, fmt.Errorf("empty segment in %q", key)
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		last := parts[len(parts)-1]
		if last == "" {
			return nil, fmt.Errorf("empty segment in %q", key)
		}
		node[last] = parseValue(raw)
	}
	return patch, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
