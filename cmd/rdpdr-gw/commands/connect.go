package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/corerdp/rdpdr/internal/devman"
	"github.com/corerdp/rdpdr/internal/drive"
	"github.com/corerdp/rdpdr/internal/logger"
	"github.com/corerdp/rdpdr/internal/metrics"
	"github.com/corerdp/rdpdr/internal/metricsserver"
	"github.com/corerdp/rdpdr/internal/ntlm"
	"github.com/corerdp/rdpdr/internal/parallel"
	"github.com/corerdp/rdpdr/internal/rpch"
	"github.com/corerdp/rdpdr/internal/rpchttp"
	"github.com/corerdp/rdpdr/internal/rpcclient"
	"github.com/corerdp/rdpdr/internal/serial"
	"github.com/corerdp/rdpdr/internal/telemetry"
	"github.com/corerdp/rdpdr/pkg/config"
	"github.com/corerdp/rdpdr/pkg/rdpdr"
	"github.com/corerdp/rdpdr/pkg/stream"
	"github.com/corerdp/rdpdr/pkg/tsg"
)

const defaultTargetPort = 3389

var (
	connectUsername     string
	connectDomain       string
	connectPassword     string
	connectMaxFrag      uint16
	connectCapabilities uint32
	connectInsecureSkip bool
)

var connectCmd = &cobra.Command{
	Use:   "connect <target-host> [target-port]",
	Short: "Dial a TSG gateway and bridge an RDPDR channel for manual testing",
	Long: `connect dials the configured Remote Desktop Gateway over RPC-over-HTTP,
opens a TSG tunnel, and creates a channel to <target-host>:<target-port>
(default 3389). Local devices configured in the "devices" section of the
config file are announced over the bridged RDPDR channel. Runs until
interrupted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectUsername, "username", "", "gateway username (prompted if omitted)")
	connectCmd.Flags().StringVar(&connectDomain, "domain", "", "gateway domain")
	connectCmd.Flags().StringVar(&connectPassword, "password", "", "gateway password (prompted if omitted)")
	connectCmd.Flags().Uint16Var(&connectMaxFrag, "max-frag", 5840, "maximum RPC fragment size advertised in the bind request")
	connectCmd.Flags().Uint32Var(&connectCapabilities, "capabilities", 0, "NAP capability bitmask advertised in CreateTunnel")
	connectCmd.Flags().BoolVar(&connectInsecureSkip, "insecure-skip-verify", false, "skip TLS certificate verification against the gateway")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "rdpdr-gw",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warnf("telemetry shutdown: %v", err)
		}
	}()

	stopProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "rdpdr-gw",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("init profiling: %w", err)
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			logger.Warnf("profiling shutdown: %v", err)
		}
	}()

	var chMetrics *metrics.ChannelMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		chMetrics = metrics.NewChannelMetrics()
	}

	targetHost := args[0]
	targetPort := uint16(defaultTargetPort)
	if len(args) == 2 {
		p, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid target port %q: %w", args[1], err)
		}
		targetPort = uint16(p)
	}

	creds, err := resolveCredentials()
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	httpCfg := rpchttp.Config{
		Hostname:           cfg.Gateway.Hostname,
		Port:               int(cfg.Gateway.Port),
		InsecureSkipVerify: connectInsecureSkip,
		DialTimeout:        30 * time.Second,
		Credentials:        creds,
	}
	vcCfg := rpch.Config{
		HTTP:              httpCfg,
		ReceiveWindowSize: cfg.ReceiveWindow.Uint32(),
		ChannelLifetime:   cfg.ChannelLifetime,
		KeepaliveInterval: time.Duration(cfg.KeepAliveIntervalMS) * time.Millisecond,
		ConnectionTimeout: 120000,
		Metrics:           chMetrics,
	}

	logger.Infof("dialing gateway %s:%d", cfg.Gateway.Hostname, cfg.Gateway.Port)
	vc := rpch.NewVirtualConnection(vcCfg)
	if err := vc.Open(); err != nil {
		return fmt.Errorf("open virtual connection: %w", err)
	}
	defer vc.Close()

	rpcClient := rpcclient.New(vc, creds, connectMaxFrag)
	if err := rpcClient.Bind(); err != nil {
		return fmt.Errorf("rpc bind: %w", err)
	}
	go rpcClient.Run(vcCfg.KeepaliveInterval)
	defer rpcClient.Close()

	tunnel := tsg.NewTunnel(rpcClient, connectCapabilities, cfg.ComputerName, onPresentationMessage)
	tunnel.SetMetrics(chMetrics)
	if err := tunnel.Create(); err != nil {
		return fmt.Errorf("create tunnel: %w", err)
	}
	if err := tunnel.Authorize(); err != nil {
		return fmt.Errorf("authorize tunnel: %w", err)
	}
	defer tunnel.Close()

	logger.Infof("creating channel to %s:%d", targetHost, targetPort)
	channel, err := tunnel.CreateChannel(targetHost, targetPort)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	pipe, err := channel.SetupReceivePipe()
	if err != nil {
		return fmt.Errorf("setup receive pipe: %w", err)
	}

	pool := stream.NewPool(stream.DefaultConfig())
	mgr := devman.New()
	registerDevices(mgr, cfg.Devices, pool)

	rdpdrChannel := rdpdr.New(rdpdr.Config{
		ComputerName:         cfg.ComputerName,
		IgnoreInvalidDevices: cfg.IgnoreInvalidDevices,
		SynchronousChannels:  cfg.SynchronousChannels,
		Metrics:              chMetrics,
	}, &tunnelTransport{channel: channel}, pool, mgr)

	if cfg.Metrics.Enabled {
		metricsSrv := metricsserver.New(metricsserver.Config{Port: uint16(cfg.Metrics.Port)}, metrics.GetRegistry(), func() error {
			return rpcClient.ReadErr()
		})
		go func() {
			if err := metricsSrv.Start(ctx); err != nil {
				logger.Warnf("metrics server: %v", err)
			}
		}()
	}

	if hasAutomount(cfg.Devices) {
		go runHotplug(ctx, mgr, rdpdrChannel, pool)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- readLoop(pipe, rdpdrChannel) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// tunnelTransport adapts a *tsg.Channel's SendToServer to pkg/rdpdr.Transport.
type tunnelTransport struct {
	channel *tsg.Channel
}

func (t *tunnelTransport) Send(data []byte) error {
	return t.channel.SendToServer(data)
}

func readLoop(pipe interface{ Read([]byte) (int, error) }, channel *rdpdr.Channel) error {
	buf := make([]byte, 64*1024)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if err := channel.HandleFrame(rdpdr.ChannelFlagFirst|rdpdr.ChannelFlagLast, uint32(n), frame); err != nil {
				return fmt.Errorf("handle frame: %w", err)
			}
		}
		if err != nil {
			return fmt.Errorf("read receive pipe: %w", err)
		}
	}
}

func onPresentationMessage(kind int, isDisplayMandatory, isConsentMandatory bool, text string) bool {
	logger.Infof("gateway message (kind=%d display=%v consent=%v): %s", kind, isDisplayMandatory, isConsentMandatory, text)
	return true
}

func resolveCredentials() (ntlm.Credentials, error) {
	username := connectUsername
	if username == "" {
		prompt := promptui.Prompt{Label: "Gateway username"}
		result, err := prompt.Run()
		if err != nil {
			return ntlm.Credentials{}, err
		}
		username = result
	}

	password := connectPassword
	if password == "" {
		prompt := promptui.Prompt{Label: "Gateway password", Mask: '*'}
		result, err := prompt.Run()
		if err != nil {
			return ntlm.Credentials{}, err
		}
		password = result
	}

	return ntlm.Credentials{Username: username, Domain: connectDomain, Password: password}, nil
}

func hasAutomount(specs []config.DeviceSpec) bool {
	for _, spec := range specs {
		if spec.Type == "drive" && spec.Automount {
			return true
		}
	}
	return false
}

// runHotplug watches the removable-media whitelist roots and registers/
// unregisters drive devices as mounts come and go, announcing each change
// over the bridged RDPDR channel, until ctx is cancelled.
func runHotplug(ctx context.Context, mgr *devman.Manager, rdpdrChannel *rdpdr.Channel, pool *stream.Pool) {
	uid := strconv.Itoa(os.Getuid())
	username := uid
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	h := drive.NewHotplug(drive.DefaultWhitelistRoots(uid, username))
	err := h.Run(ctx, time.Second,
		func(mountPath string) uint32 {
			dev := drive.New(filepath.Base(mountPath), mountPath, pool)
			id := mgr.Register(dev)
			if err := rdpdrChannel.AnnounceDevice(dev); err != nil {
				logger.Warnf("hotplug: announce drive at %s (id=%d): %v", mountPath, id, err)
			} else {
				logger.Infof("hotplug: registered drive at %s (id=%d)", mountPath, id)
			}
			return id
		},
		func(id uint32) {
			if err := rdpdrChannel.RemoveDevice(id); err != nil {
				logger.Warnf("hotplug: remove drive id=%d: %v", id, err)
			} else {
				logger.Infof("hotplug: unregistered drive id=%d", id)
			}
		},
	)
	if err != nil {
		logger.Warnf("hotplug: stopped: %v", err)
	}
}

func registerDevices(mgr *devman.Manager, specs []config.DeviceSpec, pool *stream.Pool) {
	for _, spec := range specs {
		switch spec.Type {
		case "drive":
			mgr.Register(drive.New(spec.Name, spec.Path, pool))
		case "serial":
			mgr.Register(serial.New(spec.Name, spec.Path, pool))
		case "parallel":
			mgr.Register(parallel.New(spec.Name, spec.Path, pool))
		case "printer", "smartcard":
			logger.Warnf("skipping device %q: %s devices require a host backend not wired in this CLI", spec.Name, spec.Type)
		default:
			logger.Warnf("skipping device %q: unknown type %q", spec.Name, spec.Type)
		}
	}
}
