package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"freeimages/upload"
)

var direct bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload images and print their public URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		remote.Init(ctx)

		strategy := upload.Presigned
		if direct {
			strategy = upload.Direct
		}
		client := upload.NewClient(remote)

		var failed int
		for _, name := range args {
			data, err := os.ReadFile(name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				failed++
				continue
			}
			url, err := client.Upload(ctx, upload.LocalFile{Name: filepath.Base(name), Data: data}, strategy)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				failed++
				continue
			}
			fmt.Println(url)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&direct, "direct", false, "send files through the server instead of a signed URL")
}
