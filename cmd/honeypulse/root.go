package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/honeypulse/internal/daemon"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/util"
)

var (
	cfgFile string
	cfg     *util.Config
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "honeypulse",
	Short: "Multi-port TCP honeypot with attack analysis",
	Long: `HoneyPulse listens on decoy TCP ports (FTP, SSH, HTTP, HTTPS by default),
greets every visitor with a fake service banner and logs everything they send.

The captured activity is analysed into:
- The most active attacker addresses and their sophistication scores
- Port targeting statistics
- Hourly attack distribution
- The most common payloads

It runs as a background daemon and serves reports through the CLI, a
terminal dashboard and a web API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	daemon.Version = version
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.honeypulse/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(webCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	var err error
	cfg, err = util.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel, cfg.LogFile)
}

// openCache opens the report cache. Analysis still works without it.
func openCache() *storage.DB {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		util.Warn("Report cache unavailable: %v", err)
		return nil
	}
	return db
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("honeypulse version %s\n", version)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for honeypulse.

To load completions:

Bash:
  $ source <(honeypulse completion bash)

Zsh:
  $ source <(honeypulse completion zsh)

Fish:
  $ honeypulse completion fish | source

PowerShell:
  PS> honeypulse completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}
