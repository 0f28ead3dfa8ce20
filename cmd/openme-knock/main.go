// Command openme-knock is the client side of the openme Single Packet
// Authentication (SPA) protocol: it builds and sends the authenticated UDP
// packets that ask an openme gate to open its firewall.
//
// Usage:
//
//	openme-knock send                   # knock using the default profile
//	openme-knock send home              # knock using the 'home' profile
//	openme-knock send --server 1.2.3.4  # knock without a config file
//	openme-knock status [profile]       # check if the gate's health port is open
//	openme-knock keygen [profile]       # generate a client keypair
//	openme-knock import <file>          # create a profile from a QR payload
//	openme-knock profiles               # list configured profiles
//	openme-knock inspect <file>         # decode a captured knock packet
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/merlos/openmelib-go/internal/config"
	internlcrypto "github.com/merlos/openmelib-go/internal/crypto"
	"github.com/merlos/openmelib-go/internal/qr"
	"github.com/merlos/openmelib-go/pkg/b64"
	"github.com/merlos/openmelib-go/pkg/knock"
	"github.com/merlos/openmelib-go/pkg/protocol"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "openme-knock",
		Short: "Single Packet Authentication knock client",
		Long: `openme-knock sends SPA (Single Packet Authentication) knock packets using
ephemeral Curve25519 ECDH key exchange, ChaCha20-Poly1305 encryption and
Ed25519 signatures. A single 165-byte UDP datagram authenticates you to an
openme gate, which then opens its firewall for your IP.`,
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "profile config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newSendCmd(),
		newStatusCmd(),
		newKeygenCmd(),
		newImportCmd(),
		newProfilesCmd(),
		newInspectCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger creates a slog.Logger at the configured level.
func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ────────────────────────────────────────────────────────────────────────────
// openme-knock send [profile]
// ────────────────────────────────────────────────────────────────────────────

func newSendCmd() *cobra.Command {
	var (
		targetIP  string
		server    string
		port      uint16
		serverKey string
		clientKey string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [profile]",
		Short: "Build and send a knock packet",
		Long: `Send a knock packet to an openme gate.

Without flags the gate address and keys come from the named profile
("default" if omitted). With --server the config file is skipped entirely:

  openme-knock send --server 1.2.3.4 --server-key <b64> --key <b64>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileName := ""
			if len(args) > 0 {
				profileName = args[0]
			}
			return runSend(profileName, targetIP, server, port, serverKey, clientKey, timeout)
		},
	}

	cmd.Flags().StringVar(&targetIP, "ip", "", "IP to open the firewall for (default: the knock's source IP)")
	cmd.Flags().StringVar(&server, "server", "", "gate host; skips the config file (requires --server-key and --key)")
	cmd.Flags().Uint16Var(&port, "port", protocol.DefaultUDPPort, "gate UDP port (with --server)")
	cmd.Flags().StringVar(&serverKey, "server-key", "", "base64 Curve25519 public key of the gate (with --server)")
	cmd.Flags().StringVar(&clientKey, "key", "", "base64 Ed25519 private key of this client (with --server)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "UDP send timeout (0 = profile setting, or no deadline)")

	return cmd
}

func runSend(profileName, targetIPStr, server string, port uint16, serverKey, clientKey string, timeout time.Duration) error {
	log := newLogger()

	profile, err := resolveProfile(profileName, server, port, serverKey, clientKey)
	if err != nil {
		return err
	}

	serverPubBytes, err := internlcrypto.DecodeSizedKey(profile.ServerPubKey, internlcrypto.Curve25519KeySize)
	if err != nil {
		return fmt.Errorf("decoding gate public key: %w", err)
	}
	var serverPub [internlcrypto.Curve25519KeySize]byte
	copy(serverPub[:], serverPubBytes)

	seed, err := internlcrypto.DecodeSeed(profile.PrivateKey)
	if err != nil {
		return fmt.Errorf("decoding client private key: %w", err)
	}

	if targetIPStr == "" {
		targetIPStr = profile.TargetIP
	}
	var target net.IP
	if targetIPStr != "" && targetIPStr != protocol.WildcardIP {
		if target = net.ParseIP(targetIPStr); target == nil {
			return fmt.Errorf("invalid target IP %q", targetIPStr)
		}
	}

	if timeout == 0 {
		timeout = profile.Timeout.Duration
	}
	udpPort := profile.ServerUDPPort
	if udpPort == 0 {
		udpPort = protocol.DefaultUDPPort
	}

	opts := &knock.KnockOptions{
		ServerHost:             profile.ServerHost,
		ServerUDPPort:          udpPort,
		ServerCurve25519PubKey: serverPub,
		ClientEd25519Seed:      seed,
		TargetIP:               target,
		Hooks: &knock.Hooks{
			Sender: &knock.UDPSender{Timeout: timeout},
		},
	}

	log.Debug("sending knock",
		"host", profile.ServerHost, "port", udpPort,
		"target_ip", targetIPStr, "timeout", timeout)

	fmt.Printf("Knocking %s:%d ...\n", profile.ServerHost, udpPort)
	if err := knock.Knock(opts); err != nil {
		return fmt.Errorf("knock failed: %w", err)
	}
	fmt.Println("Knock sent.")

	if profile.PostKnock != "" {
		fmt.Printf("Running post-knock: %s\n", profile.PostKnock)
		c := exec.Command("sh", "-c", profile.PostKnock)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		c.Stdin = os.Stdin
		return c.Run()
	}
	return nil
}

// resolveProfile returns the knock profile either from explicit flags or
// from the config file.
func resolveProfile(profileName, server string, port uint16, serverKey, clientKey string) (*config.Profile, error) {
	if server != "" {
		if serverKey == "" || clientKey == "" {
			return nil, fmt.Errorf("--server requires --server-key and --key")
		}
		p := &config.Profile{
			ServerHost:    server,
			ServerUDPPort: port,
			ServerPubKey:  serverKey,
			PrivateKey:    clientKey,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	p, err := cfg.GetProfile(profileName)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return p, nil
}

// ────────────────────────────────────────────────────────────────────────────
// openme-knock status [profile]
// ────────────────────────────────────────────────────────────────────────────

func newStatusCmd() *cobra.Command {
	var knockFirst bool

	cmd := &cobra.Command{
		Use:   "status [profile]",
		Short: "Check if the gate's health port is open (requires prior authentication)",
		Long: `Check reachability of the gate's TCP health port.

The health port is only open after a successful knock. Running status
without --knock requires you to have already knocked recently.

Use --knock to knock first, then check. This validates the full
authentication round trip end-to-end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileName := ""
			if len(args) > 0 {
				profileName = args[0]
			}
			return runStatus(profileName, knockFirst)
		},
	}
	cmd.Flags().BoolVar(&knockFirst, "knock", false, "knock first, then check the health port")
	return cmd
}

// runStatus checks whether the gate's TCP health port is reachable.
// If knockFirst is true it sends a knock packet first and waits briefly
// before checking, validating the full authentication round trip.
func runStatus(profileName string, knockFirst bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	profile, err := cfg.GetProfile(profileName)
	if err != nil {
		return err
	}

	if knockFirst {
		fmt.Println("Knocking first...")
		if err := runSend(profileName, "", "", 0, "", "", 0); err != nil {
			return fmt.Errorf("knock failed: %w", err)
		}
		// Give the gate time to apply the firewall rule before checking.
		fmt.Println("Waiting for firewall rule to propagate...")
		time.Sleep(500 * time.Millisecond)
	}

	port := profile.ServerUDPPort
	if port == 0 {
		port = protocol.DefaultUDPPort
	}
	fmt.Printf("Checking health port %s:%d (TCP)...\n", profile.ServerHost, port)
	if knock.HealthCheck(profile.ServerHost, port, 3*time.Second) {
		fmt.Println("✓ Health port is open — authentication succeeded.")
		return nil
	}

	if knockFirst {
		fmt.Println("✗ Health port is still closed after knocking.")
		fmt.Println("  Check the gate's logs and firewall configuration.")
	} else {
		fmt.Println("✗ Health port is closed.")
		fmt.Println("  The health port is only open after a successful knock.")
		fmt.Println("  Try: openme-knock status --knock")
	}
	return fmt.Errorf("health port unreachable")
}

// ────────────────────────────────────────────────────────────────────────────
// openme-knock keygen [profile]
// ────────────────────────────────────────────────────────────────────────────

func newKeygenCmd() *cobra.Command {
	var (
		serverHost string
		udpPort    uint16
		serverKey  string
		showQR     bool
		qrOut      string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "keygen [profile]",
		Short: "Generate a client keypair and store it in a profile",
		Long: `Generate a fresh Ed25519 keypair and write it to the named profile
("default" if omitted).

Register the printed public key with the gate administrator. The gate
address can be given now with --server and --server-key, or filled in
later by editing the config file.

Example:
  openme-knock keygen home --server gate.example.com --server-key <b64>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileName := ""
			if len(args) > 0 {
				profileName = args[0]
			}
			return runKeygen(profileName, serverHost, udpPort, serverKey, showQR, qrOut, force)
		},
	}

	cmd.Flags().StringVar(&serverHost, "server", "", "gate hostname or IP")
	cmd.Flags().Uint16Var(&udpPort, "port", protocol.DefaultUDPPort, "gate UDP port")
	cmd.Flags().StringVar(&serverKey, "server-key", "", "base64 Curve25519 public key of the gate")
	cmd.Flags().BoolVar(&showQR, "qr", false, "display the profile as a QR code in the terminal")
	cmd.Flags().StringVar(&qrOut, "qr-out", "", "write the profile QR as a PNG to this file path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile with a new keypair")

	return cmd
}

// runKeygen generates a fresh Ed25519 keypair and stores it in a profile.
// It refuses to overwrite an existing profile unless --force is given, since
// that discards a registered key.
func runKeygen(profileName, serverHost string, udpPort uint16, serverKey string, showQR bool, qrOut string, force bool) error {
	if profileName == "" {
		profileName = "default"
	}

	cfg, err := loadOrNewConfig(configPath)
	if err != nil {
		return err
	}
	if _, exists := cfg.Profiles[profileName]; exists && !force {
		return fmt.Errorf(
			"profile %q already exists at %s\nUse --force to replace its keypair (the gate must register the new key)",
			profileName, configPath,
		)
	}

	kp, err := internlcrypto.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}

	profile := &config.Profile{
		ServerHost:    serverHost,
		ServerUDPPort: udpPort,
		ServerPubKey:  serverKey,
		PrivateKey:    internlcrypto.EncodeKey(kp.PrivateKey),
		PublicKey:     internlcrypto.EncodeKey(kp.PublicKey),
	}
	cfg.SetProfile(profileName, profile)

	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf(`Keypair generated and stored in profile %q.

  Config:       %s
  Fingerprint:  %s

  Public key (register with the gate administrator):
    %s

`, profileName, configPath, internlcrypto.FingerprintKey(kp.PublicKey), profile.PublicKey)

	if serverHost == "" {
		fmt.Println("No gate configured yet. Edit the config or re-run with --server and --server-key.")
	}

	if showQR || qrOut != "" {
		fmt.Println("⚠ WARNING: the QR contains this profile's private key. Treat it as a secret!")
		payload := &qr.Payload{
			ProfileName:   profileName,
			ServerHost:    serverHost,
			ServerUDPPort: udpPort,
			ServerPubKey:  serverKey,
			ClientPrivKey: profile.PrivateKey,
			ClientPubKey:  profile.PublicKey,
		}
		if err := qr.Generate(payload, &qr.GenerateOptions{OutputPath: qrOut}); err != nil {
			return fmt.Errorf("generating QR: %w", err)
		}
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// openme-knock import <file|->
// ────────────────────────────────────────────────────────────────────────────

func newImportCmd() *cobra.Command {
	var (
		name  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Create a profile from a scanned QR payload",
		Long: `Import a profile from the JSON payload of an enrollment QR code.

Pass the path of a file holding the scanned payload, or - to read it from
stdin. If the payload carries no private key (the gate generated it with
--no-privkey), run keygen afterwards to pair a local keypair with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], name, force)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "profile name (default: the name suggested by the payload)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile")

	return cmd
}

func runImport(src, name string, force bool) error {
	data, err := readInput(src)
	if err != nil {
		return err
	}
	payload, err := qr.Parse(string(data))
	if err != nil {
		return err
	}

	if name == "" {
		name = payload.ProfileName
	}
	if name == "" {
		name = "default"
	}

	cfg, err := loadOrNewConfig(configPath)
	if err != nil {
		return err
	}
	if _, exists := cfg.Profiles[name]; exists && !force {
		return fmt.Errorf("profile %q already exists; use --force to overwrite or --name to pick another", name)
	}

	profile := &config.Profile{
		ServerHost:    payload.ServerHost,
		ServerUDPPort: payload.ServerUDPPort,
		ServerPubKey:  payload.ServerPubKey,
		PrivateKey:    payload.ClientPrivKey,
		PublicKey:     payload.ClientPubKey,
	}
	if payload.ClientPrivKey != "" {
		if err := profile.Validate(); err != nil {
			return fmt.Errorf("imported profile: %w", err)
		}
	} else if _, err := internlcrypto.DecodeSizedKey(payload.ServerPubKey, internlcrypto.Curve25519KeySize); err != nil {
		return fmt.Errorf("imported gate public key: %w", err)
	}

	cfg.SetProfile(name, profile)
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Profile %q imported into %s.\n", name, configPath)
	if payload.ClientPubKey != "" {
		if b, err := internlcrypto.DecodeKey(payload.ClientPubKey); err == nil {
			fmt.Printf("Key fingerprint: %s\n", internlcrypto.FingerprintKey(b))
		}
	}
	if payload.ClientPrivKey == "" {
		fmt.Printf("The payload carries no private key. Generate one with:\n  openme-knock keygen %s --force\n", name)
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// openme-knock profiles
// ────────────────────────────────────────────────────────────────────────────

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured profiles",
		RunE:  runProfiles,
	}
}

func runProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No config yet. Run 'openme-knock keygen' or 'openme-knock import' first.")
			return nil
		}
		return err
	}
	if len(cfg.Profiles) == 0 {
		fmt.Println("No profiles configured.")
		return nil
	}

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-16s %-26s %-7s %-18s %s\n", "NAME", "GATE", "PORT", "FINGERPRINT", "TARGET")
	fmt.Println("──────────────────────────────────────────────────────────────────────────")
	for _, name := range names {
		p := cfg.Profiles[name]
		fp := "no key"
		if p.PublicKey != "" {
			fp = "invalid"
			if b, err := internlcrypto.DecodeKey(p.PublicKey); err == nil {
				fp = internlcrypto.FingerprintKey(b)
			}
		}
		port := p.ServerUDPPort
		if port == 0 {
			port = protocol.DefaultUDPPort
		}
		target := p.TargetIP
		if target == "" {
			target = "source IP"
		}
		fmt.Printf("%-16s %-26s %-7d %-18s %s\n", name, p.ServerHost, port, fp, target)
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// openme-knock inspect <file|->
// ────────────────────────────────────────────────────────────────────────────

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file|->",
		Short: "Decode the public fields of a captured knock packet",
		Long: `Parse a 165-byte knock packet and print its wire fields.

The input may be raw bytes, hex or base64. Only the public envelope is
shown: the payload is encrypted for the gate and cannot be opened without
the gate's private key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0])
		},
	}
}

func runInspect(src string) error {
	data, err := readInput(src)
	if err != nil {
		return err
	}
	raw, err := decodePacketDump(data)
	if err != nil {
		return err
	}
	pkt, err := protocol.ParsePacket(raw)
	if err != nil {
		return err
	}

	fmt.Printf("Knock packet (%d bytes)\n\n", len(raw))
	fmt.Printf("  Version:         %d\n", pkt.Version)
	fmt.Printf("  Ephemeral key:   %s\n", internlcrypto.EncodeKey(pkt.EphemeralPubKey))
	fmt.Printf("  AEAD nonce:      %x\n", pkt.Nonce)
	fmt.Printf("  Ciphertext:      %d bytes (%d payload + %d tag)\n",
		len(pkt.Ciphertext), protocol.PlaintextSize, protocol.TagSize)
	fmt.Printf("  Signature:       %x\n", pkt.Signature)
	fmt.Println("\nThe payload is encrypted for the gate; it cannot be opened without the")
	fmt.Println("gate's private key.")
	return nil
}

// decodePacketDump accepts raw, hex or base64 packet bytes.
func decodePacketDump(data []byte) ([]byte, error) {
	if len(data) == protocol.PacketSize {
		return data, nil
	}
	s := strings.TrimSpace(string(data))
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := b64.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("input is not raw, hex or base64 packet bytes")
}

// ────────────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────────────

// readInput reads the whole of path, with "-" meaning stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// loadOrNewConfig loads the config at path, starting fresh if none exists yet.
func loadOrNewConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.New(), nil
	}
	return cfg, err
}
