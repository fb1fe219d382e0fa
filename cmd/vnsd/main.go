// cmd/vnsd/main.go – the VNS node daemon.
//
// Loads .env and viper config, constructs the NamespaceStore/Admission/
// Replicator stack, brings up the HTTP surface, and shuts down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vns/cmd/cli"
	"vns/core"
	"vns/httpapi"
	"vns/internal/blobstore"
	"vns/internal/netgossip"
	pkgconfig "vns/pkg/config"
	"vns/pkg/utils"
)

func main() {
	root := &cobra.Command{
		Use:   "vnsd",
		Short: "VNS name service node",
	}
	root.AddCommand(serveCmd)
	cli.RegisterRoutes(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node: HTTP surface, replication and expiry sweep",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("env", "", "environment overlay to merge on top of config/default.yaml")
}

// subsystemLogger tags every line a core/netgossip subsystem logs with its
// name, sharing this binary's own logrus level and output.
func subsystemLogger(name string) logrus.FieldLogger {
	return logrus.WithField("subsystem", name)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if strings.EqualFold(utils.EnvOrDefault("ENABLE_VNS", "true"), "false") {
		logrus.Info("vnsd: ENABLE_VNS=false, exiting without starting the node")
		return nil
	}

	_ = godotenv.Load()
	viper.AutomaticEnv()

	env, _ := cmd.Flags().GetString("env")
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		return utils.Wrap(err, "load config")
	}

	level, err := logrus.ParseLevel(utils.EnvOrDefault("VNS_LOG_LEVEL", cfg.Logging.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	dataDir := utils.EnvOrDefault("DATA_DIR", cfg.Storage.DataDir)
	blobs, err := blobstore.New(dataDir, cfg.Storage.CacheEntries)
	if err != nil {
		return utils.Wrap(err, "init blobstore")
	}

	metrics := core.NewMetrics()

	admission := core.NewAdmission(cfg.Admission.PoWDifficulty)
	admission.Limiter = core.NewRateLimiter(cfg.Admission.RateLimit, time.Duration(cfg.Admission.RateWindowSec)*time.Second)
	admission.AllowNoPoW = cfg.Admission.AllowNoPoW || strings.EqualFold(utils.EnvOrDefault("VNS_ALLOW_NO_POW", ""), "true")
	admission.SetMetrics(metrics)

	apiPort := utils.EnvOrDefault("API_PORT", "")
	apiAddr := cfg.Network.APIAddr
	if apiPort != "" {
		apiAddr = ":" + apiPort
	}

	localPeerID := cfg.Network.LocalPeerID
	if localPeerID == "" {
		localPeerID = utils.EnvOrDefault("BOOTSTRAP_PUBLIC_URL", apiAddr)
	}

	store := core.NewNamespaceStore(blobs, admission, core.StoreConfig{
		LocalPeerID:    localPeerID,
		StrictTransfer: cfg.Namespace.StrictTransfer,
		Logger:         subsystemLogger("namespace"),
		Metrics:        metrics,
	})

	manifestID := utils.EnvOrDefault("VNS_MANIFEST_CID", cfg.Namespace.ManifestCID)
	if manifestID != "" {
		if err := store.LoadManifest(manifestID); err != nil {
			logrus.Warnf("vnsd: manifest load failed, booting empty: %v", err)
		} else if degraded, skipped := store.Degraded(); degraded {
			logrus.Warnf("vnsd: booted degraded, %d entries skipped on load", skipped)
		}
	}

	transport, closeTransport, err := buildTransport(cfg)
	if err != nil {
		return utils.Wrap(err, "init transport")
	}
	defer closeTransport()

	replicator := core.NewReplicator(core.ReplicatorConfig{QueueCapacity: cfg.Replication.QueueCapacity}, subsystemLogger("replication"), store, transport)
	replicator.Start()
	defer replicator.Stop()

	server := httpapi.NewServer(apiAddr, store, httpTransport(transport), *cfg, metrics)

	sweepInterval := time.Duration(cfg.Namespace.SweepInterval) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go runSweepLoop(sweepCtx, store, sweepInterval)
	defer cancelSweep()

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("vnsd: listening on %s", apiAddr)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return utils.Wrap(err, "http server")
	case sig := <-sigc:
		logrus.Infof("vnsd: received %s, shutting down", sig)
	}
	return nil
}

// runSweepLoop calls SweepExpired on a fixed cadence until ctx is cancelled
// (§4.3's "runs on a fixed cadence ... and on demand").
func runSweepLoop(ctx context.Context, store *core.NamespaceStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.SweepExpired(); n > 0 {
				logrus.Infof("vnsd: sweep removed %d expired entries", n)
			}
		}
	}
}

// httpTransport returns t as the concrete *httpapi.Transport the Server's
// /push-delta handler dispatches through, or nil when the configured
// transport is the gossip node (which has its own inbound subscription path
// and never receives forwarded HTTP pushes).
func httpTransport(t core.Transport) *httpapi.Transport {
	if ht, ok := t.(*httpapi.Transport); ok {
		return ht
	}
	return nil
}

// buildTransport selects the gossip or HTTP fan-out core.Transport per
// VNS_TRANSPORT ("gossip", the default, or "http"), both interchangeable
// behind the interface (§4.6).
func buildTransport(cfg *pkgconfig.Config) (core.Transport, func(), error) {
	kind := strings.ToLower(utils.EnvOrDefault("VNS_TRANSPORT", "gossip"))
	switch kind {
	case "http":
		peers := append([]string{}, cfg.Network.Peers...)
		if raw := utils.EnvOrDefault("HTTP_BOOTSTRAP_PEERS", ""); raw != "" {
			peers = append(peers, strings.Split(raw, ",")...)
		}
		t := httpapi.NewTransport(peers, 5*time.Second)
		return t, func() {}, nil
	default:
		node, err := netgossip.New(netgossip.Config{
			ListenAddr:     cfg.Network.ListenAddr,
			BootstrapPeers: cfg.Network.BootstrapPeers,
			DiscoveryTag:   cfg.Network.DiscoveryTag,
		}, subsystemLogger("netgossip"))
		if err != nil {
			return nil, nil, err
		}
		return node, func() { _ = node.Close() }, nil
	}
}
