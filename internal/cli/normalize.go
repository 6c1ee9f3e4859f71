package cli

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/fundkeeper/internal/imaging"
	"github.com/spf13/cobra"
)

func newNormalizeCommand() *cobra.Command {
	var (
		maxWidth int
		quality  int
		maxBytes int
	)

	cmd := &cobra.Command{
		Use:   "normalize <in> <out>",
		Short: "Run the image codec on a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			codec := imaging.Codec{Quality: quality, MaxBytes: maxBytes}
			a, err := codec.Normalize(raw, maxWidth)
			if err != nil {
				return err
			}

			if err := os.WriteFile(args[1], a.Data, 0o644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d %d bytes\n", a.Format, a.Width, a.Height, len(a.Data))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxWidth, "max-width", imaging.CoverMaxWidth, "maximum output width in pixels")
	cmd.Flags().IntVar(&quality, "quality", imaging.DefaultQuality, "JPEG quality 1..100")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "fail when the result exceeds this size; 0 disables")

	return cmd
}
