package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-migrate/internal/engine"
	"db-migrate/internal/logging"
	"db-migrate/internal/schema"
)

var (
	cfgFile   string
	verbose   bool
	debug     bool
	configErr error
)

var RootCmd = &cobra.Command{
	Use:   "db-migrate",
	Short: "Migrate row data between two versions of an application database",
	Long: `
     _ _                     _                 _
  __| | |__        _ __ ___ (_) __ _ _ __ __ _| |_ ___
 / _' | '_ \ ____ | '_ ' _ \| |/ _' | '__/ _' | __/ _ \
| (_| | |_) |____|| | | | | | | (_| | | | (_| | ||  __/
 \__,_|_.__/      |_| |_| |_|_|\__, |_|  \__,_|\__\___|
                               |___/
DB MIGRATE - SQLite schema-to-schema row migration
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(os.Stderr, verbose, debug)
		slog.SetDefault(logger)
		cmd.SetContext(logging.ContextWithLogger(cmd.Context(), logger))

		if configErr != nil {
			return configErr
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Info("using config file", "path", used)
		}
		return nil
	},
}

// exitError ends the process with a specific code. A nil err prints nothing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code. Descriptor
// problems abort the run before it starts.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var ce *schema.ConfigError
	if errors.As(err, &ce) {
		return engine.ExitAborted
	}
	return engine.ExitFailure
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var ee *exitError
	if !errors.As(err, &ee) || ee.err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./db-migrate.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log progress at INFO level")
	flags.BoolVar(&debug, "debug", false, "log at DEBUG level")
	flags.String("driver", "", "SQLite driver: sqlite (pure Go) or sqlite3 (cgo)")
	flags.String("source", "", "source database file")
	flags.String("target", "", "target database file")
	flags.String("descriptor", "", "migration descriptor (YAML)")

	_ = viper.BindPFlag("database.driver", flags.Lookup("driver"))
	_ = viper.BindPFlag("source.path", flags.Lookup("source"))
	_ = viper.BindPFlag("target.path", flags.Lookup("target"))
	_ = viper.BindPFlag("descriptor", flags.Lookup("descriptor"))

	setDefaults(viper.GetViper())
}

// initConfig reads the .env file, the config file and DBMIGRATE_* variables.
func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable directory
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		// 2. Current directory
		viper.AddConfigPath(".")

		viper.SetConfigName("db-migrate")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DBMIGRATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("read config: %w", err)
		}
	}
}
