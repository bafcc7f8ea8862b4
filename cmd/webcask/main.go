package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/webcask/webcask/pkg/entity"
	"github.com/webcask/webcask/pkg/server/httpapi"
	"github.com/webcask/webcask/pkg/server/middleware"
)

var (
	cfgFile string
	logger  = logrus.New()

	rootCmd = &cobra.Command{
		Use:           "webcask",
		Short:         "Content-addressable entity store for HTTP caches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig, setupLogger)
	initRootFlags()
	initCommands()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("webcask")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "webcask"))
		}
	}
	viper.SetEnvPrefix("WEBCASK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

func setupLogger() {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if file := viper.GetString("log.file"); file != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
		})
	}
}

func bindConfig(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func initRootFlags() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML or YAML)")

	rootCmd.PersistentFlags().String("store", "file:.webcask/entities", "storage descriptor: heap:|file:<root>|accelredirect:<root>[#<proxy>]|bolt:<path>|memcached://…|redis://…|s3://<host>/<bucket>")
	rootCmd.PersistentFlags().Duration("ttl", 0, "entry TTL for key-value backends (0 keeps entries)")

	rootCmd.PersistentFlags().String("store-region", "", "object storage region")
	rootCmd.PersistentFlags().String("store-access-key", "", "object storage access key")
	rootCmd.PersistentFlags().String("store-secret-key", "", "object storage secret key")
	rootCmd.PersistentFlags().String("store-session-token", "", "object storage session token")
	rootCmd.PersistentFlags().Bool("store-insecure", false, "use plain HTTP for object storage")
	rootCmd.PersistentFlags().Int("cache-entries", 0, "read-through cache entries for the object backend (0 uses the default)")
	rootCmd.PersistentFlags().Duration("cache-ttl", time.Minute, "read-through cache entry lifetime")

	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace|debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-file", "", "log to a rotating file instead of stderr")
	rootCmd.PersistentFlags().Int("log-max-size-mb", 32, "rotate the log file after this many MiB")
	rootCmd.PersistentFlags().Int("log-max-backups", 3, "rotated log files to keep")

	bindConfig("store", rootCmd.PersistentFlags().Lookup("store"))
	bindConfig("ttl", rootCmd.PersistentFlags().Lookup("ttl"))
	bindConfig("store_region", rootCmd.PersistentFlags().Lookup("store-region"))
	bindConfig("store_access_key", rootCmd.PersistentFlags().Lookup("store-access-key"))
	bindConfig("store_secret_key", rootCmd.PersistentFlags().Lookup("store-secret-key"))
	bindConfig("store_session_token", rootCmd.PersistentFlags().Lookup("store-session-token"))
	bindConfig("store_insecure", rootCmd.PersistentFlags().Lookup("store-insecure"))
	bindConfig("cache_entries", rootCmd.PersistentFlags().Lookup("cache-entries"))
	bindConfig("cache_ttl", rootCmd.PersistentFlags().Lookup("cache-ttl"))
	bindConfig("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	bindConfig("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
	bindConfig("log.max_size_mb", rootCmd.PersistentFlags().Lookup("log-max-size-mb"))
	bindConfig("log.max_backups", rootCmd.PersistentFlags().Lookup("log-max-backups"))
}

func initCommands() {
	rootCmd.AddCommand(
		newPutCmd(),
		newCatCmd(),
		newStatCmd(),
		newRmCmd(),
		newDigestCmd(),
		newServeCmd(),
	)
}

func withStore(run func(ctx context.Context, store entity.Store) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)
	return run(context.Background(), store)
}

func closeStore(store entity.Store) {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("close store")
		}
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put",
		Short: "Store stdin and print its digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store entity.Store) error {
				digest, size, err := store.Write(ctx, os.Stdin)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%d\n", digest, size)
				return nil
			})
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <digest>",
		Short: "Print the stored content for a digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store entity.Store) error {
				rc, err := store.Open(ctx, args[0])
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(os.Stdout, rc)
				return err
			})
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <digest>",
		Short: "Report whether a digest is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store entity.Store) error {
				ok, err := store.Exists(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: not stored", args[0])
				}
				fmt.Println("stored")
				return nil
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <digest>",
		Short: "Purge a stored entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store entity.Store) error {
				return store.Purge(ctx, args[0])
			})
		},
	}
}

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Compute the digest of stdin without storing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, size, err := entity.Digest(os.Stdin)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%d\n", digest, size)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the entity store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store entity.Store) error {
				srv, err := httpapi.New(store, logger, httpapi.Options{
					APIKey:       viper.GetString("serve.api_key"),
					MaxBodyBytes: viper.GetInt64("serve.max_body_bytes"),
					RateLimit: middleware.RateLimitOptions{
						Requests: viper.GetInt("serve.rate_limit"),
						Window:   viper.GetDuration("serve.rate_window"),
					},
				})
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				addr := viper.GetString("serve.addr")
				logger.WithField("addr", addr).Info("serving entity store")
				err = srv.Start(ctx, addr)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().String("addr", ":8475", "listen address")
	cmd.Flags().String("api-key", "", "require this API key on every request")
	cmd.Flags().Int("rate-limit", 0, "requests allowed per window (0 disables)")
	cmd.Flags().Duration("rate-window", time.Second, "rate limit window")
	cmd.Flags().Int64("max-body-bytes", 0, "largest accepted body (0 is unlimited)")
	bindConfig("serve.addr", cmd.Flags().Lookup("addr"))
	bindConfig("serve.api_key", cmd.Flags().Lookup("api-key"))
	bindConfig("serve.rate_limit", cmd.Flags().Lookup("rate-limit"))
	bindConfig("serve.rate_window", cmd.Flags().Lookup("rate-window"))
	bindConfig("serve.max_body_bytes", cmd.Flags().Lookup("max-body-bytes"))
	return cmd
}
