package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sle-engine/internal/config"
	"sle-engine/internal/isp1"
	"sle-engine/internal/peers"
	"sle-engine/internal/provider"
	"sle-engine/internal/session"
	"sle-engine/internal/si"
	"sle-engine/internal/stats"
	"sle-engine/internal/transport"
	"sle-engine/pkg/types"
)

var (
	version = "1.0.0"
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sle-engine",
		Short: "SLE protocol engine - run a service instance session end to end",
		Long: `Runs an SLE service instance in the user role against a built-in
provider responder over an in-process link: bind, start, transfer data,
stop, unbind, with ISP1 authentication and live statistics.`,
		Version: version,
		RunE:    run,
	}

	// Configuration file
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "Configuration file path (default: config.yaml)")

	// CLI overrides
	rootCmd.Flags().String("siid", "", "Service instance identifier (sagr=..spack=..rsl-fg=..raf=..)")
	rootCmd.Flags().String("service-type", "", "Service type (RAF|RCF|ROCF|CLTU|FSP)")
	rootCmd.Flags().Int("version-number", 0, "Bind version number (1-5)")
	rootCmd.Flags().String("auth", "", "Authentication mode (none|bind|all)")
	rootCmd.Flags().Int("auth-delay", 0, "Acceptable credentials delay in seconds")
	rootCmd.Flags().Int("timeout", 0, "Operation confirmation timeout in ms")
	rootCmd.Flags().Int("transfers", -1, "Number of transfer PDUs the provider emits")
	rootCmd.Flags().Int("transfer-interval", -1, "Delay between transfer PDUs in ms")
	rootCmd.Flags().Int("transfer-size", 0, "Transfer PDU payload size in bytes")
	rootCmd.Flags().String("log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.Flags().String("stats-export", "", "Statistics JSON export file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Load configuration
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug("No config file found, using defaults and CLI flags")
	}

	bindViperFlags(v, cmd)

	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(cfg)

	fmt.Printf("SLE Engine v%s\n", version)
	fmt.Println("==============================")
	fmt.Print(cfg.Summary())
	fmt.Println()

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	return runSession(ctx, cfg)
}

func runSession(ctx context.Context, cfg *config.Config) error {
	serviceType, err := si.ParseServiceType(cfg.Instance.ServiceType)
	if err != nil {
		return err
	}
	identifier, err := si.Parse(cfg.Instance.Identifier, serviceType)
	if err != nil {
		return err
	}
	role, err := session.ParseRole(cfg.Instance.Role)
	if err != nil {
		return err
	}
	if role != session.RoleUser {
		return fmt.Errorf("only the user role can drive the built-in provider, got %v", role)
	}
	authMode, err := session.ParseAuthMode(cfg.Instance.AuthMode)
	if err != nil {
		return err
	}
	authPolicy, err := session.ParseAuthFailurePolicy(cfg.Instance.AuthFailurePolicy)
	if err != nil {
		return err
	}
	hashAlgo, err := isp1.ParseHashAlgorithm(cfg.Instance.Hash)
	if err != nil {
		return err
	}
	localPassword, err := hex.DecodeString(cfg.Instance.LocalPasswordHex)
	if err != nil {
		return fmt.Errorf("invalid local password hex: %w", err)
	}

	// Peer directory shared by both ends of the link. The local identity is
	// added so the provider end can authenticate the user.
	directory := peers.NewDirectory()
	for _, p := range cfg.Peers {
		if err := directory.Add(p.ID, p.PasswordHex, p.Hash); err != nil {
			return err
		}
	}
	if authMode != session.AuthNone {
		if _, err := directory.Lookup(cfg.Instance.LocalID); err != nil {
			if err := directory.Add(cfg.Instance.LocalID, cfg.Instance.LocalPasswordHex, cfg.Instance.Hash); err != nil {
				return err
			}
		}
	}

	responseTimeout := time.Duration(cfg.Timing.ResponseTimeoutMs) * time.Millisecond

	userEnd, providerEnd := transport.Pipe()
	defer userEnd.Close()
	defer providerEnd.Close()

	userInstance := session.New(session.Config{
		Identifier:        identifier,
		ServiceType:       serviceType,
		Role:              session.RoleUser,
		Version:           cfg.Instance.Version,
		LocalID:           cfg.Instance.LocalID,
		LocalPassword:     localPassword,
		RemotePeerID:      cfg.Instance.RemotePeer,
		HashAlgorithm:     hashAlgo,
		AuthMode:          authMode,
		AuthDelaySeconds:  cfg.Instance.AuthDelaySeconds,
		AuthFailurePolicy: authPolicy,
		ResponseTimeout:   responseTimeout,
	}, userEnd, directory, statsSink(cfg))

	remotePassword := localPassword
	if peer, err := directory.Lookup(cfg.Instance.RemotePeer); err == nil {
		remotePassword = peer.Password
	}
	providerInstance := session.New(session.Config{
		Identifier:        identifier,
		ServiceType:       serviceType,
		Role:              session.RoleProvider,
		Version:           cfg.Instance.Version,
		LocalID:           cfg.Instance.RemotePeer,
		LocalPassword:     remotePassword,
		RemotePeerID:      cfg.Instance.LocalID,
		HashAlgorithm:     hashAlgo,
		AuthMode:          authMode,
		AuthDelaySeconds:  cfg.Instance.AuthDelaySeconds,
		AuthFailurePolicy: authPolicy,
		ResponseTimeout:   responseTimeout,
	}, providerEnd, directory, nil)

	transport.StartPump(ctx, userEnd, userInstance)

	recorder := stats.NewRecorder(userInstance)
	recorderHandle := userInstance.RegisterListener(recorder)
	defer userInstance.UnregisterListener(recorderHandle)

	reporter := stats.NewReporter(collector, recorder, cfg.Stats.ReportIntervalSec, cfg.Stats.ExportFile)
	if cfg.Stats.Enabled {
		reporter.StartPeriodicReport(ctx)
	}

	// Completion tracking for the data phase
	done := make(chan struct{})
	counterHandle := userInstance.RegisterListener(newTransferCounter(cfg.Timing.TransferCount, done))
	defer userInstance.UnregisterListener(counterHandle)

	responder := provider.New(providerInstance, providerEnd,
		time.Duration(cfg.Timing.TransferIntervalMs)*time.Millisecond,
		cfg.Timing.TransferSizeBytes, cfg.Timing.TransferCount)
	go responder.Run(ctx)

	// Drive the session lifecycle
	before := recorder.Sample()

	if err := userInstance.Bind(ctx, cfg.Instance.Version); err != nil {
		return err
	}
	if err := userInstance.Start(ctx); err != nil {
		return err
	}

	select {
	case <-done:
		log.WithField("transfers", cfg.Timing.TransferCount).Info("Data phase complete")
	case <-ctx.Done():
		log.Info("Interrupted during data phase")
	}

	if err := userInstance.Stop(context.Background()); err != nil {
		log.WithError(err).Warn("Stop failed")
	}
	if err := userInstance.Unbind(context.Background(), "end"); err != nil {
		log.WithError(err).Warn("Unbind reported an error")
	}

	after := recorder.Sample()
	rate := stats.RateBetween(before, after)
	fmt.Printf("Session traffic: %d PDUs, %d bytes (%.1f PDU/s)\n",
		after.PDUCount-before.PDUCount, after.ByteCount-before.ByteCount, rate.PDUsPerSecond)

	if cfg.Stats.Enabled {
		reporter.PrintFinalReport()
		if err := reporter.ExportJSON(); err != nil {
			log.WithError(err).Warn("Failed to export statistics")
		}
	}

	return nil
}

// collector is shared between runSession and statsSink.
var collector = stats.NewCollector()

func statsSink(cfg *config.Config) session.StatsSink {
	if !cfg.Stats.Enabled {
		return nil
	}
	return collector
}

// transferCounter closes done once the expected number of transfer PDUs has
// been observed.
type transferCounter struct {
	expected int
	seen     int
	done     chan struct{}
}

func newTransferCounter(expected int, done chan struct{}) *transferCounter {
	c := &transferCounter{expected: expected, done: done}
	if expected <= 0 {
		close(done)
	}
	return c
}

func (c *transferCounter) StateChanged(from, to session.State) {}

func (c *transferCounter) PDUReceived(pdu types.PDU) {
	if pdu.Type != types.PDUTransferData || c.expected <= 0 {
		return
	}
	c.seen++
	if c.seen == c.expected {
		close(c.done)
	}
}

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("Failed to open log file, using console only")
		} else {
			log.SetOutput(f)
		}
	}
}

func bindViperFlags(v *viper.Viper, cmd *cobra.Command) {
	if cmd.Flags().Changed("siid") {
		val, _ := cmd.Flags().GetString("siid")
		v.Set("instance.identifier", val)
	}
	if cmd.Flags().Changed("service-type") {
		val, _ := cmd.Flags().GetString("service-type")
		v.Set("instance.service_type", val)
	}
	if cmd.Flags().Changed("version-number") {
		val, _ := cmd.Flags().GetInt("version-number")
		v.Set("instance.version", val)
	}
	if cmd.Flags().Changed("auth") {
		val, _ := cmd.Flags().GetString("auth")
		v.Set("instance.auth_mode", val)
	}
	if cmd.Flags().Changed("auth-delay") {
		val, _ := cmd.Flags().GetInt("auth-delay")
		v.Set("instance.auth_delay_seconds", val)
	}
	if cmd.Flags().Changed("timeout") {
		val, _ := cmd.Flags().GetInt("timeout")
		v.Set("timing.response_timeout_ms", val)
	}
	if cmd.Flags().Changed("transfers") {
		val, _ := cmd.Flags().GetInt("transfers")
		v.Set("timing.transfer_count", val)
	}
	if cmd.Flags().Changed("transfer-interval") {
		val, _ := cmd.Flags().GetInt("transfer-interval")
		v.Set("timing.transfer_interval_ms", val)
	}
	if cmd.Flags().Changed("transfer-size") {
		val, _ := cmd.Flags().GetInt("transfer-size")
		v.Set("timing.transfer_size_bytes", val)
	}
	if cmd.Flags().Changed("log-level") {
		val, _ := cmd.Flags().GetString("log-level")
		v.Set("logging.level", val)
	}
	if cmd.Flags().Changed("stats-export") {
		val, _ := cmd.Flags().GetString("stats-export")
		v.Set("stats.export_file", val)
	}
}
