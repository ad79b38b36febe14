package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/importer"
	"inkwell/internal/menu"
	"inkwell/internal/server"
	"inkwell/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	cfg        *config.Config
	configFile string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "inkwell - a tiny blog kept in a flat text file",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return menuCmd.RunE(cmd, args)
	},
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if c.JSON {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openStore builds the configured backend. The returned func releases it.
func openStore() (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendHybrid:
		st, err := store.NewHybridStore(cfg.RedisAddr, cfg.BadgerPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return store.NewFileStore(cfg.DataFile, logger), func() {}, nil
	}
}

// withStore opens the store around fn.
func withStore(fn func(ctx context.Context, st store.Store) error) error {
	st, closeStore, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer closeStore()
	return fn(context.Background(), st)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid post id %q", arg)
	}
	return id, nil
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive menu (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			return menu.New(st, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		})
	},
}

var (
	addAuthor  string
	addContent string
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			post, err := st.Create(ctx, args[0], addContent, addAuthor)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), post)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every post",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			posts, err := st.All(ctx)
			if err != nil {
				return err
			}
			for i := range posts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s---\n", &posts[i])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total posts: %d\n", len(posts))
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			post, err := st.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("post %d: %w", id, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), post)
			return nil
		})
	},
}

var (
	editTitle   string
	editContent string
)

var editCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Change a post's title and/or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			var title, content *string
			if cmd.Flags().Changed("title") {
				title = &editTitle
			}
			if cmd.Flags().Changed("content") {
				content = &editContent
			}
			post, err := st.Patch(ctx, id, title, content)
			if err != nil {
				return fmt.Errorf("post %d: %w", id, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), post)
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			if err := st.Delete(ctx, id); err != nil {
				return fmt.Errorf("post %d: %w", id, err)
			}
			logger.Info("Post deleted", zap.Int("id", id))
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Find posts by title, content or author",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := ""
		if len(args) == 1 {
			keyword = args[0]
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			posts, err := st.Search(ctx, keyword)
			if err != nil {
				return err
			}
			for i := range posts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s---\n", &posts[i])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d post(s)\n", len(posts))
			return nil
		})
	},
}

var importAuthor string

var importCmd = &cobra.Command{
	Use:   "import [url]",
	Short: "Create a post from a web page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			post, err := importer.NewImporter(st, logger).Import(ctx, args[0], importAuthor)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), post)
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, closeStore, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}
		defer closeStore()

		srv := server.NewServer(st, importer.NewImporter(st, logger), logger)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(cfg.HTTP.Addr) }()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				return err
			}
		}
		logger.Info("Goodbye!")
		return nil
	},
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to a config file (default: inkwell.yaml in . or ~/.config/inkwell)")
	pf.String("data", store.DefaultFile, "Path to the post file")
	pf.String("backend", config.BackendFile, "Storage backend: file or hybrid")
	pf.String("redis", "localhost:6379", "Address of Redis server (hybrid backend)")
	pf.String("badger", "./badger-data", "Path to BadgerDB data directory (hybrid backend)")
	v.BindPFlag("data_file", pf.Lookup("data"))
	v.BindPFlag("backend", pf.Lookup("backend"))
	v.BindPFlag("redis_addr", pf.Lookup("redis"))
	v.BindPFlag("badger_path", pf.Lookup("badger"))

	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	v.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))

	addCmd.Flags().StringVarP(&addAuthor, "author", "a", "", "Post author")
	addCmd.Flags().StringVarP(&addContent, "content", "c", "", "Post content")
	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "New title")
	editCmd.Flags().StringVarP(&editContent, "content", "c", "", "New content")
	importCmd.Flags().StringVarP(&importAuthor, "author", "a", "", "Author (default: page byline)")

	rootCmd.AddCommand(menuCmd, addCmd, listCmd, showCmd, editCmd, rmCmd, searchCmd, importCmd, serveCmd)

	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}
