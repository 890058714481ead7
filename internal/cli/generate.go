package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"depth-studio-backend/internal/apiclient"
	"depth-studio-backend/utils"
)

var (
	genImage    string
	genPrompt   string
	genStrength float64
	genOut      string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Restyle an image with a depth-conditioned model",
	Long: `Upload an image and a prompt, and print the URL of the generated image.

Examples:
  depthctl generate --image room.jpg
  depthctl generate --image room.jpg --prompt "industrial loft" --strength 0.6
  depthctl generate --image room.jpg --out restyled.png`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&genImage, "image", "", "Source image file (required)")
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "Text prompt (server default when empty)")
	generateCmd.Flags().Float64Var(&genStrength, "strength", 0, "How far the result may drift from the source, in (0,1]")
	generateCmd.Flags().StringVar(&genOut, "out", "", "Also download the result to this file")
	_ = generateCmd.MarkFlagRequired("image")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genStrength < 0 || genStrength > 1 {
		return fmt.Errorf("--strength must be in (0,1]")
	}

	data, err := os.ReadFile(genImage)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if ct := http.DetectContentType(data); !utils.IsValidImageType(ct) {
		return fmt.Errorf("%s does not look like an image (%s)", genImage, ct)
	}

	ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
	defer cancel()

	client := newClient()
	resp, err := client.Generate(ctx, apiclient.GenerateParams{
		Image:    bytes.NewReader(data),
		Filename: filepath.Base(genImage),
		Prompt:   genPrompt,
		Strength: genStrength,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.ImageURL)

	if genOut == "" {
		return nil
	}

	f, err := os.Create(genOut)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := client.Download(ctx, resp.ImageURL, f); err != nil {
		f.Close()
		os.Remove(genOut)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved to %s\n", genOut)
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
