package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewManifestCmd создаёт группу команд для работы с манифестами.
func NewManifestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Manage manifests",
	}

	cmd.AddCommand(
		newManifestListCmd(clientFn, outputFn),
		newManifestShowCmd(clientFn, outputFn),
		newManifestValidateCmd(clientFn, outputFn),
	)

	return cmd
}

func newManifestListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List manifests known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			names, err := client.ListManifests()
			if err != nil {
				return err
			}

			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name}
			}

			out.Print([]string{"NAME"}, rows, names)
			return nil
		},
	}
}

func newManifestShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			m, err := client.GetManifest(args[0])
			if err != nil {
				return err
			}

			out.JSON(m)
			return nil
		},
	}
}

func newManifestValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a manifest file against the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}

			result, err := client.ValidateManifest(doc)
			if err != nil {
				return err
			}

			if result.Valid {
				out.Success(fmt.Sprintf("Manifest is valid: %s (%d steps)", result.Name, result.Steps))
			} else {
				out.Error(fmt.Sprintf("Manifest is invalid: %s", result.Error))
			}
			out.Print(
				[]string{"VALID", "NAME", "STEPS", "ERROR"},
				[][]string{{strconv.FormatBool(result.Valid), result.Name, strconv.Itoa(result.Steps), result.Error}},
				result,
			)

			if !result.Valid {
				os.Exit(1)
			}
			return nil
		},
	}
}
