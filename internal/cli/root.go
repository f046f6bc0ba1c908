package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"packfetch/internal/api"
	"packfetch/internal/clipboard"
	"packfetch/internal/config"
	"packfetch/internal/convert"
	"packfetch/internal/httpx"
	"packfetch/internal/pipeline"
	"packfetch/internal/state"
	"packfetch/internal/utils"
)

// Version information - set via ldflags during build.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Command line flags
var (
	verbose       bool
	outputDir     string
	concurrency   int
	protocol      string
	noConvert     bool
	noJournal     bool
	keepGoing     bool
	fromClipboard bool
)

// logRetention is how many debug log files survive cleanup.
const logRetention = 10

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "packfetch <author.asset>...",
	Short:   "Fetch workshop packages and compile their primary model",
	Long:    `packfetch resolves a package identifier against the workshop service,
downloads every file its manifest declares into a local package tree, and
hands the primary compiled asset to the configured external converter.`,
	Version: Version,
	Args:    cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.SetVerbose(verbose)
		if err := config.EnsureDirs(); err != nil {
			fmt.Fprintf(os.Stderr, "Error preparing directories: %v\n", err)
			os.Exit(1)
		}
		utils.CleanupLogs(logRetention)
		if !noJournal {
			state.Configure(filepath.Join(config.GetStateDir(), "journal.db"))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		defer state.CloseDB()

		if fromClipboard {
			ident, err := clipboard.ReadIdent()
			if err != nil {
				if err == clipboard.ErrInvalidIdent {
					fmt.Fprintln(os.Stderr, "Error: clipboard does not contain an author.asset identifier")
				} else {
					fmt.Fprintf(os.Stderr, "Error reading from clipboard: %v\n", err)
				}
				os.Exit(1)
			}
			args = append(args, ident.String())
			fmt.Printf("Package from clipboard: %s\n", ident)
		}

		if len(args) == 0 {
			cmd.Help()
			os.Exit(1)
		}

		settings, err := config.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
			os.Exit(1)
		}
		applyFlagOverrides(settings)

		idents := make([]api.PackageIdent, 0, len(args))
		for _, arg := range args {
			ident, err := api.ParseIdent(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %q is not an author.asset identifier\n", arg)
				os.Exit(1)
			}
			idents = append(idents, ident)
		}

		clients := httpx.NewClientSet(settings.Network.Protocol, settings.Network.ConcurrentFetches)
		defer clients.Close()

		pipe := &pipeline.Pipeline{
			API:         api.NewClient(settings.Network.ServiceRoot, clients.Client()),
			HTTPClient:  clients.Client(),
			Root:        settings.DownloadRoot,
			Concurrency: settings.Network.ConcurrentFetches,
			Converter:   buildConverter(settings),
			Journal:     !noJournal,
		}

		failed := 0
		for _, ident := range idents {
			if err := runPackage(cmd.Context(), pipe, ident); err != nil {
				failed++
				if !keepGoing {
					os.Exit(1)
				}
			}
		}
		if failed > 0 {
			fmt.Fprintf(os.Stderr, "%d of %d packages failed\n", failed, len(idents))
			os.Exit(1)
		}
	},
}

// runPackage executes one pipeline run under the per-package lock.
func runPackage(ctx context.Context, pipe *pipeline.Pipeline, ident api.PackageIdent) error {
	if err := os.MkdirAll(pipe.Root, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", ident, err)
		return err
	}

	// Concurrent invocations against the same package tree would race on
	// the same destination files; the advisory lock makes the second run
	// fail fast instead.
	lock := flock.New(filepath.Join(pipe.Root, ident.String()+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: acquiring lock: %v\n", ident, err)
		return err
	}
	if !locked {
		err := fmt.Errorf("another packfetch run is already fetching %s", ident)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer lock.Unlock()

	fmt.Printf("Fetching %s\n", ident)
	result, err := pipe.Run(ctx, ident)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s failed while %s: %v\n", ident, result.Phase, err)
		return err
	}

	fmt.Printf("Fetched %d files into %s\n", len(result.Outcomes), result.PackageRoot)
	if result.PrimaryPath != "" {
		fmt.Printf("Primary asset: %s\n", result.PrimaryPath)
	}
	return nil
}

func applyFlagOverrides(settings *config.Settings) {
	if outputDir != "" {
		settings.DownloadRoot = utils.EnsureAbsPath(outputDir)
	}
	if settings.DownloadRoot == "" {
		settings.DownloadRoot = config.GetDefaultDownloadRoot()
	}
	if concurrency > 0 {
		settings.Network.ConcurrentFetches = concurrency
	}
	if protocol != "" {
		settings.Network.Protocol = protocol
	}
}

func buildConverter(settings *config.Settings) convert.Converter {
	if noConvert || len(settings.Converter.Command) == 0 {
		return nil
	}
	return &convert.CommandConverter{Command: settings.Converter.Command}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Download root directory")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Maximum simultaneous file downloads")
	rootCmd.Flags().StringVar(&protocol, "protocol", "", "HTTP protocol preference (auto, http1, http2, http3)")
	rootCmd.Flags().BoolVar(&noConvert, "no-convert", false, "Skip the converter step")
	rootCmd.Flags().BoolVar(&noJournal, "no-journal", false, "Do not record this run in the journal")
	rootCmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "Continue with remaining packages after a failure")
	rootCmd.Flags().BoolVar(&fromClipboard, "clipboard", false, "Read the package identifier from the clipboard")
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
