package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"drive-go/internal/app"
	"drive-go/internal/config"
	"drive-go/internal/drive"
	"drive-go/internal/session"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if session.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "Not logged in or session expired. Run `drive login`.")
		}
		os.Exit(1)
	}
}

// newApp reads the config and creates a DriveApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "upload", "purge").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.DriveApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config (run `drive config init` first): %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewDriveApp(cfg, app.Options{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "drive",
	Short:        "Command-line client for the file storage server",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		server, _ := cmd.Flags().GetString("server")
		if server == "" {
			server = defaults.ServerURL
		}

		cfg := config.NewConfig(server, defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Server:   %s\n", server)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used for encrypted uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "keys-init", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := promptNewSecret(os.Stderr, "passphrase")
		if err != nil {
			return err
		}
		if err := a.InitKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys created.")
		return nil
	},
}

// account commands
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		a, err := newApp(cmd, "register", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if email == "" {
			if email, err = promptLine(stdin, os.Stderr, "Email: "); err != nil {
				return err
			}
		}
		if name == "" {
			if name, err = promptLine(stdin, os.Stderr, "Name: "); err != nil {
				return err
			}
		}
		pass, err := promptNewSecret(os.Stderr, "password")
		if err != nil {
			return err
		}

		if err := a.Register(cmd.Context(), name, email, pass); err != nil {
			return err
		}
		fmt.Printf("Account %s created. Run `drive login` to sign in.\n", email)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		a, err := newApp(cmd, "login", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if email == "" {
			if email, err = promptLine(stdin, os.Stderr, "Email: "); err != nil {
				return err
			}
		}
		pass, err := promptSecret(os.Stderr, "Password: ")
		if err != nil {
			return err
		}

		sess, err := a.Login(cmd.Context(), email, pass)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s", sess.Username)
		if sess.ExpiresAt != nil {
			fmt.Printf(" (session expires %s)", formatTime(*sess.ExpiresAt))
		}
		fmt.Println()
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "logout", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "whoami", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Whoami()
		if err != nil {
			return err
		}
		switch {
		case !st.LoggedIn:
			fmt.Println("Not logged in.")
		case st.Expired:
			fmt.Printf("%s (session expired %s)\n", st.Username, formatTime(*st.ExpiresAt))
		case st.ExpiresAt != nil:
			fmt.Printf("%s (session expires %s)\n", st.Username, formatTime(*st.ExpiresAt))
		default:
			fmt.Println(st.Username)
		}
		return nil
	},
}

// listing commands
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List active files",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		starred, _ := cmd.Flags().GetBool("starred")
		return listFiles(cmd, drive.ScopeActive, query, starred)
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List trashed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listFiles(cmd, drive.ScopeTrash, "", false)
	},
}

func listFiles(cmd *cobra.Command, scope drive.Scope, query string, starredOnly bool) error {
	a, err := newApp(cmd, "ls", nil)
	if err != nil {
		return err
	}
	defer a.Close()

	files, err := a.List(cmd.Context(), scope, query)
	if err != nil {
		return err
	}
	if starredOnly {
		kept := files[:0]
		for _, f := range files {
			if f.Starred {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	printFiles(os.Stdout, files)
	return nil
}

var sharedCmd = &cobra.Command{
	Use:   "shared",
	Short: "List files shared with you",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Sharing is not available yet.")
	},
}

// mutation commands
var starCmd = &cobra.Command{
	Use:   "star ID",
	Short: "Toggle the star on a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "star", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.ToggleStar(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "unstarred"
		if rec.Starred {
			state = "starred"
		}
		fmt.Printf("%s %s\n", rec.Name, state)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm ID...",
	Short: "Move files to the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachID(cmd, "rm", args, "Moved to trash", func(a *app.DriveApp, ctx context.Context, id string) error {
			return a.Trash(ctx, id)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore ID...",
	Short: "Restore files from the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachID(cmd, "restore", args, "Restored", func(a *app.DriveApp, ctx context.Context, id string) error {
			return a.Restore(ctx, id)
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge ID...",
	Short: "Permanently delete files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(stdin, os.Stderr, fmt.Sprintf("Permanently delete %d file(s)? This cannot be undone.", len(args))) {
			return errors.New("aborted")
		}
		return eachID(cmd, "purge", args, "Deleted", func(a *app.DriveApp, ctx context.Context, id string) error {
			return a.Purge(ctx, id)
		})
	},
}

// eachID applies fn to every id, continuing after failures.
func eachID(cmd *cobra.Command, operation string, ids []string, done string, fn func(*app.DriveApp, context.Context, string) error) error {
	a, err := newApp(cmd, operation, ids)
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, id := range ids {
		if err := fn(a, cmd.Context(), id); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Printf("%s: %s\n", done, id)
	}
	return errors.Join(errs...)
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH...",
	Short: "Upload files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		quiet, _ := cmd.Flags().GetBool("quiet")

		a, err := newApp(cmd, "upload", args)
		if err != nil {
			return err
		}
		defer a.Close()

		var observe app.UploadObserver
		if !quiet {
			observe = func(t *drive.UploadTask, ev drive.UploadEvent) {
				printUploadEvent(os.Stderr, t.Name(), ev)
			}
		}

		snaps, err := a.Upload(cmd.Context(), args, recursive, observe)
		for _, s := range snaps {
			if s.Status == drive.UploadSucceeded {
				fmt.Printf("%s\t%s\n", s.Record.ID, s.Record.Name)
			}
		}
		return err
	},
}

func printUploadEvent(w io.Writer, name string, ev drive.UploadEvent) {
	switch ev.Status {
	case drive.UploadInProgress:
		fmt.Fprintf(w, "%s %3d%% %s\n", progressBar(ev.Progress), ev.Progress, name)
	case drive.UploadSucceeded:
		fmt.Fprintf(w, "done       %s\n", name)
	case drive.UploadFailed:
		fmt.Fprintf(w, "failed     %s: %v\n", name, ev.Err)
	}
}

// preview command
var previewCmd = &cobra.Command{
	Use:   "preview ID",
	Short: "Fetch a file into a temporary local copy",
	Long: "Fetch a file into the staging area and print its local path. The copy is " +
		"removed when you press Enter. Encrypted files are decrypted first.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, _ := cmd.Flags().GetBool("cat")

		a, err := newApp(cmd, "preview", args)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase := func() (string, error) {
			return promptSecret(os.Stderr, "Passphrase: ")
		}
		return a.Preview(cmd.Context(), args[0], passphrase, func(h drive.PreviewHandle) error {
			if cat {
				return copyHandle(os.Stdout, h)
			}
			fmt.Printf("%s\t%s\t%s\n", h.Address, h.ContentType, humanSize(h.Size))
			return waitForRelease(stdin, os.Stderr)
		})
	},
}

// copyHandle writes the content behind a file-backed handle to w.
func copyHandle(w io.Writer, h drive.PreviewHandle) error {
	if strings.Contains(h.Address, "://") {
		return fmt.Errorf("preview at %s is not a local file; use a filesystem staging area", h.Address)
	}
	f, err := os.Open(h.Address)
	if err != nil {
		return fmt.Errorf("opening preview: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Copy a file to an export sink",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sink, _ := cmd.Flags().GetString("sink")

		a, err := newApp(cmd, "export", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Export(cmd.Context(), args[0], sink)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s (%s, sha256 %s)\n", res.FileID, res.Location, humanSize(res.Size), res.Checksum)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View upload history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		exports, _ := cmd.Flags().GetBool("exports")
		ops, _ := cmd.Flags().GetBool("operations")

		a, err := newApp(cmd, "history", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		switch {
		case exports:
			records, err := a.ExportHistory(limit)
			if err != nil {
				return err
			}
			printExports(os.Stdout, records)
		case ops:
			records, err := a.Operations(limit)
			if err != nil {
				return err
			}
			printOperations(os.Stdout, records)
		default:
			records, err := a.History(limit)
			if err != nil {
				return err
			}
			printUploads(os.Stdout, records)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Write debug records to the log file")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("server", "", "File server URL (default $DRIVE_SERVER_URL or "+app.DefaultServerURL+")")

	keysCmd.AddCommand(keysInitCmd)

	registerCmd.Flags().String("name", "", "Display name")
	registerCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("email", "", "Account email")

	lsCmd.Flags().StringP("query", "q", "", "Only files whose name contains this text")
	lsCmd.Flags().BoolP("starred", "s", false, "Only starred files")
	purgeCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	uploadCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	uploadCmd.Flags().Bool("quiet", false, "Do not print progress")
	previewCmd.Flags().Bool("cat", false, "Write the content to stdout instead of waiting")
	exportCmd.Flags().String("sink", "", "Export sink name (default: the first configured)")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show")
	historyCmd.Flags().Bool("exports", false, "Show exports instead of uploads")
	historyCmd.Flags().Bool("operations", false, "Show recorded commands instead of uploads")

	rootCmd.AddCommand(configCmd, keysCmd)
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(lsCmd, trashCmd, sharedCmd)
	rootCmd.AddCommand(starCmd, rmCmd, restoreCmd, purgeCmd)
	rootCmd.AddCommand(uploadCmd, previewCmd, exportCmd, historyCmd)
}
