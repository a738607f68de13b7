package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uniquestream/packagekit/pkg/install"
	"github.com/uniquestream/packagekit/pkg/integrity"
	"github.com/uniquestream/packagekit/pkg/ledger"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
	"github.com/uniquestream/packagekit/pkg/storage"
)

func newInstallCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a plugin or scene package",
	}
	cmd.AddCommand(newInstallPluginCommand(a), newInstallSceneCommand(a))
	return cmd
}

func newInstallPluginCommand(a *app) *cobra.Command {
	var req packagetypes.InstallRequest

	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Download, verify and install a plugin package",
		Long: `Download a plugin package, verify its sha256 and signature, and install
it under <plugins_root>/<id>. A previous installation is kept aside until the
new one is in place and restored if the install fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := a.fetcher()
			defer f.Close()

			if !integrity.IsValidHexDigest(req.SHA256) {
				return fmt.Errorf("--sha256 must be a 64 character hex digest, got %q", req.SHA256)
			}

			svc, err := a.service(f)
			if err != nil {
				return err
			}
			defer a.logStats(svc)

			res := svc.Submit(cmd.Context(), install.Request{Plugin: &req, Token: a.cfg.Portal.Token})
			if res.Err != nil {
				if res.Fatal {
					return fmt.Errorf("%w\nthe previous installation is at %s and must be restored by hand",
						res.Err, res.Transaction.BackupPath)
				}
				return res.Err
			}

			txn := res.Transaction
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Installed %s %s\n", req.ID, req.Version)
			fmt.Fprintf(out, "  Path:   %s\n", txn.InstalledPath)
			fmt.Fprintf(out, "  SHA256: %s\n", txn.Hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ID, "id", "", "plugin id")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Version, "version", "", "plugin version")
	cmd.Flags().StringVar(&req.PackageURL, "url", "", "package URL")
	cmd.Flags().StringVar(&req.SHA256, "sha256", "", "expected sha256 of the package")
	cmd.Flags().StringVar(&req.Signature, "signature", "", "package signature (sha256:<digest>)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newInstallSceneCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scene <id>",
		Short: "Download a scene package listed in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := a.fetcher()
			defer f.Close()

			entry, err := a.client(f).Find(cmd.Context(), args[0], a.cfg.Portal.Token)
			if err != nil {
				return err
			}

			svc, err := a.service(f)
			if err != nil {
				return err
			}
			defer a.logStats(svc)

			res := svc.Submit(cmd.Context(), install.Request{Scene: &entry, Token: a.cfg.Portal.Token})
			if res.Err != nil {
				return res.Err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Installed scene package %s\n", res.Scene.Manifest)
			fmt.Fprintf(out, "  Root:      %s\n", res.Scene.Root)
			fmt.Fprintf(out, "  Resources: %d downloaded\n", len(res.Scene.Written))
			return nil
		},
	}
}

func newInstalledCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			entries := l.List()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No packages installed.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "KIND\tID\tVERSION\tINSTALLED\tSHA256\tPATH")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Kind,
					e.ID,
					e.Version,
					e.InstalledAt.Format("2006-01-02 15:04"),
					truncateString(orDash(e.SHA256), 19),
					e.Path,
				)
			}
			return nil
		},
	}
}

func newUninstallCommand(a *app) *cobra.Command {
	var keepFiles bool

	cmd := &cobra.Command{
		Use:   "uninstall <plugin|scene> <id>",
		Short: "Remove an installed package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ledger.Kind(args[0])
			if kind != ledger.KindPlugin && kind != ledger.KindScene {
				return fmt.Errorf("unknown package kind %q (want plugin or scene)", args[0])
			}

			l, err := a.ledger()
			if err != nil {
				return err
			}
			entry, ok := l.Get(kind, args[1])
			if !ok {
				return fmt.Errorf("%w: %s %s", ledger.ErrNotFound, kind, args[1])
			}

			if !keepFiles {
				// plugin entries point at the package file inside <plugins_root>/<id>
				target := entry.Path
				if kind == ledger.KindPlugin {
					target = filepath.Dir(entry.Path)
				}
				if err := storage.SafeRemoveAll(target); err != nil {
					return err
				}
				a.logger.Info("Removed installed files", zap.String("path", target))
			}

			if err := l.Remove(kind, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s %s %s\n", kind, entry.ID, entry.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "only forget the package, leave its files on disk")
	return cmd
}
