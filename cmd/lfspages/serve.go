package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wzshiming/lfspages/internal/utils"
	"github.com/wzshiming/lfspages/pkg/cache"
	"github.com/wzshiming/lfspages/pkg/gateway"
	"github.com/wzshiming/lfspages/pkg/lfs"
	"github.com/wzshiming/lfspages/pkg/origin"
	"github.com/wzshiming/lfspages/pkg/platform"
)

var _ gateway.Platform = (*platform.Local)(nil)

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "HTTP server address")
	flags.String("root", "", "Directory of the static site")
	flags.String("origin", "", "URL of the static site, used instead of --root")
	flags.String("lfs-config", "", "Path of the LFS config file (default: <root>/.lfsconfig)")
	flags.String("config-path", gateway.DefaultConfigPath, "Public path of the LFS config file, never served")
	flags.String("keep-headers", gateway.DefaultKeepHeaders, "Comma separated origin headers kept on LFS objects")
	flags.String("bucket-url", "", "Public base URL of the LFS bucket")
	flags.String("bucket-dir", "", "Directory holding LFS objects")
	flags.String("s3-endpoint", "", "S3 endpoint")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-bucket", "", "S3 bucket name")
	flags.String("s3-prefix", "", "S3 key prefix of LFS objects")
	flags.Bool("s3-use-path-style", false, "Use path style for S3 URLs")
	flags.String("cache-bolt", "", "Path of a boltdb file used as response cache")
	flags.String("cache-redis", "", "Redis URL used as response cache")
	flags.Int64("cache-max-entry", 64<<20, "Largest response body stored in the cache")

	for _, name := range []string{
		"addr", "root", "origin", "lfs-config", "config-path", "keep-headers",
		"bucket-url", "bucket-dir",
		"s3-endpoint", "s3-access-key", "s3-secret-key", "s3-bucket", "s3-prefix", "s3-use-path-style",
		"cache-bolt", "cache-redis", "cache-max-entry",
	} {
		_ = viper.BindPFlag(configKey(name), flags.Lookup(name))
	}

	rootCmd.AddCommand(serveCmd)
}

func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

var serveCmd = &cobra.Command{
	Use:   "serve [options]",
	Short: "Run the gateway",
	Long:  `Start an HTTP server that serves a static site and resolves the Git LFS pointers in it.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := viper.GetString("root")

		o, err := newOrigin(root, viper.GetString("origin"))
		if err != nil {
			return err
		}

		lfsConfig, err := readLFSConfig(root, viper.GetString("lfs_config"))
		if err != nil {
			return err
		}

		var platformOpts []platform.Option
		platformOpts = append(platformOpts, platform.WithCacheLimit(viper.GetInt64("cache_max_entry")))

		c, closeCache, err := newCache(cmd.Context())
		if err != nil {
			return err
		}
		if c != nil {
			defer closeCache()
			platformOpts = append(platformOpts, platform.WithCache(c))
		}

		if bucket := newBucket(); bucket != nil {
			platformOpts = append(platformOpts, platform.WithBucket(bucket))
		}

		pf := platform.NewLocal(platformOpts...)

		var handler http.Handler
		handler = gateway.NewHandler(
			gateway.WithPlatform(pf),
			gateway.WithOrigin(o),
			gateway.WithLFSConfig(lfsConfig),
			gateway.WithConfigPath(viper.GetString("config_path")),
			gateway.WithBucketURL(viper.GetString("bucket_url")),
			gateway.WithKeepHeaders(gateway.ParseKeepHeaders(viper.GetString("keep_headers"))),
			gateway.WithCacheLimit(viper.GetInt64("cache_max_entry")),
		)

		handler = handlers.ProxyHeaders(handler)
		handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
		handler = handlers.LoggingHandler(os.Stderr, handler)

		addr := viper.GetString("addr")
		server := &http.Server{
			Addr:    addr,
			Handler: handler,
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf("Starting lfspages on %q", ln.Addr())
		return runServer(ctx, server, ln, pf.Wait)
	},
}

// runServer serves on ln until ctx is done. wait runs after every in-flight
// request has finished, so no deferred task can be scheduled behind it.
func runServer(ctx context.Context, server *http.Server, ln net.Listener, wait func()) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts, not when it is done.
	<-shutdownDone
	log.Printf("Waiting for pending cache writes")
	wait()
	return nil
}

func newOrigin(root, originURL string) (gateway.Origin, error) {
	if originURL != "" {
		log.Printf("Serving static site from %s", originURL)
		return origin.NewUpstream(originURL, utils.HTTPClient)
	}
	if root == "" {
		return nil, errors.New("one of --root or --origin is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	log.Printf("Serving static site from directory %q", abs)
	return origin.Dir(abs), nil
}

func readLFSConfig(root, path string) (string, error) {
	if path == "" {
		if root == "" {
			return "", nil
		}
		path = filepath.Join(root, ".lfsconfig")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("No LFS config at %q, LFS server resolution disabled", path)
			return "", nil
		}
		return "", fmt.Errorf("failed to read LFS config: %w", err)
	}

	if _, ok := lfs.URLFromConfig(string(data)); ok {
		log.Printf("Using LFS config %q", path)
	} else {
		log.Printf("LFS config %q has no usable lfs.url", path)
	}
	return string(data), nil
}

func newCache(ctx context.Context) (cache.Cache, func(), error) {
	if path := viper.GetString("cache_bolt"); path != "" {
		b, err := cache.NewBolt(path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Caching responses in %q", path)
		return b, func() { _ = b.Close() }, nil
	}

	if rawURL := viper.GetString("cache_redis"); rawURL != "" {
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		r := cache.NewRedis(redis.NewClient(opts), "lfspages:")
		if ctx == nil {
			ctx = context.Background()
		}
		if err := r.Health(ctx); err != nil {
			log.Printf("Redis cache at %s is not reachable: %v", opts.Addr, err)
		} else {
			log.Printf("Caching responses in redis at %s", opts.Addr)
		}
		return r, func() { _ = r.Close() }, nil
	}

	return nil, nil, nil
}

func newBucket() platform.Bucket {
	endpoint := viper.GetString("s3_endpoint")
	bucket := viper.GetString("s3_bucket")
	if endpoint != "" && bucket != "" {
		log.Printf("Reading LFS objects from S3 bucket %s", bucket)
		return lfs.NewS3(
			viper.GetString("s3_prefix"),
			endpoint,
			viper.GetString("s3_access_key"),
			viper.GetString("s3_secret_key"),
			bucket,
			viper.GetBool("s3_use_path_style"),
		)
	}

	if dir := viper.GetString("bucket_dir"); dir != "" {
		log.Printf("Reading LFS objects from directory %q", dir)
		return lfs.NewContent(dir)
	}
	return nil
}
