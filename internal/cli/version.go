package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/uniquestream/packagekit/pkg/integrity"
	"github.com/uniquestream/packagekit/pkg/version"
)

var (
	// Version information - set at build time
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pkgctl\n")
			fmt.Fprintf(out, "  Version:    %s\n", Version)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newCompareCommand() *cobra.Command {
	var minimum bool

	cmd := &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Compare two dotted versions",
		Long: `Compare two dotted versions component by component as integers.

With --minimum, treat <a> as the host version and <b> as a package's minimum
and exit with an error when the host is too old.`,
		Example: "  pkgctl compare 30.1.2 30.10\n  pkgctl compare --minimum 29.1.0 30.0.0",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b := args[0], args[1]
			if minimum {
				if err := version.CheckMinimum(a, b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s satisfies minimum %s\n", a, b)
				return nil
			}

			rel := "="
			switch version.Compare(a, b) {
			case -1:
				rel = "<"
			case 1:
				rel = ">"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", a, rel, b)
			return nil
		},
	}
	cmd.Flags().BoolVar(&minimum, "minimum", false, "check <a> against minimum <b>")
	return cmd
}

func newHashCommand() *cobra.Command {
	var expected, signature string

	cmd := &cobra.Command{
		Use:   "hash <file>",
		Short: "Print a file's sha256 and signature, or verify them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			if expected == "" && signature == "" {
				digest, err := integrity.Digest(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sha256:    %s\n", digest)
				fmt.Fprintf(out, "signature: %s\n", integrity.ExpectedSignature(digest))
				return nil
			}

			declared := expected
			if declared == "" {
				digest, err := integrity.Digest(path)
				if err != nil {
					return err
				}
				declared = digest
			} else {
				if !integrity.IsValidHexDigest(declared) {
					return fmt.Errorf("--sha256 must be a 64 character hex digest, got %q", declared)
				}
				if _, err := integrity.VerifyPackageHash(path, declared); err != nil {
					return err
				}
			}
			if err := integrity.VerifySignature(declared, signature); err != nil {
				if errors.Is(err, integrity.ErrMissingSignature) && signature == "" {
					fmt.Fprintf(out, "%s: hash OK (no signature given)\n", path)
					return nil
				}
				return err
			}
			fmt.Fprintf(out, "%s: hash and signature OK\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&expected, "sha256", "", "expected sha256 to verify against")
	cmd.Flags().StringVar(&signature, "signature", "", "expected signature (sha256:<digest>)")
	return cmd
}
