// Command exposemgr is the CLI/stdio adapter over internal/manager: a
// positional operation name, a JSON params blob, and a JSON result on
// stdout, diagnostics on stderr — no business logic of its own beyond
// flag and JSON plumbing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"exposemgr/internal/domain"
	ilog "exposemgr/internal/log"
	"exposemgr/internal/manager"
	"exposemgr/internal/process/osexec"
	"exposemgr/internal/timing/real"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}
	tool := args[0]
	if tool == "-h" || tool == "--help" || tool == "help" {
		printUsage()
		return 0
	}

	fs := flag.NewFlagSet(tool, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		paramsRaw    string
		paramsFile   string
		configRaw    string
		configFile   string
		workspaceDir string
		tunnelBinary string
		logLevel     string
		keepAlive    bool
		noKeepAlive  bool
		compact      bool
	)
	fs.StringVar(&paramsRaw, "params", "", "JSON operation parameters")
	fs.StringVar(&paramsFile, "params-file", "", "path to a file containing JSON operation parameters")
	fs.StringVar(&configRaw, "config", "", "JSON policy config patch")
	fs.StringVar(&configFile, "config-file", "", "path to a file containing a JSON policy config patch")
	fs.StringVar(&workspaceDir, "workspace-dir", "", "override the state directory (default ~/.cfshare)")
	fs.StringVar(&tunnelBinary, "tunnel-binary", "cloudflared", "quick-tunnel agent binary name or path")
	fs.StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	fs.BoolVar(&keepAlive, "keep-alive", false, "block after printing the result so an exposure outlives this process")
	fs.BoolVar(&noKeepAlive, "no-keep-alive", false, "exit immediately after printing the result even for expose operations")
	fs.BoolVar(&compact, "compact", false, "force single-line JSON output")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	params, err := loadJSONInput(paramsRaw, paramsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "params error:", err)
		return 2
	}
	configPatch, err := loadJSONInput(configRaw, configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}

	stateDir := workspaceDir
	if stateDir == "" {
		stateDir, err = manager.DefaultStateDir(false)
		if err != nil {
			fmt.Fprintln(os.Stderr, "state dir error:", err)
			return 1
		}
	}

	log := ilog.New(logLevel)
	clock := real.New()
	launcher := osexec.New()

	mgr, err := manager.New(manager.Config{
		StateDir:     stateDir,
		TunnelBinary: tunnelBinary,
		ConfigPatch:  configPatch,
		LogLevel:     logLevel,
	}, clock, launcher, http.DefaultTransport, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "manager init error:", err)
		return 1
	}
	defer mgr.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, opErr := dispatch(ctx, mgr, tool, params)

	pretty := !compact && isatty.IsTerminal(os.Stdout.Fd())
	if opErr != nil {
		writeJSON(os.Stdout, errorEnvelope(opErr), pretty)
		return 1
	}
	writeJSON(os.Stdout, result, pretty)

	if (holdsSession(tool) || keepAlive) && !noKeepAlive {
		<-ctx.Done()
	}
	return 0
}

func dispatch(ctx context.Context, mgr *manager.Manager, tool string, params []byte) (any, error) {
	switch tool {
	case "env_check":
		return mgr.EnvCheck(ctx)
	case "expose_port":
		var req domain.ExposePortRequest
		if err := unmarshalIfPresent(params, &req); err != nil {
			return nil, err
		}
		return mgr.ExposePort(ctx, req)
	case "expose_files":
		var req domain.ExposeFilesRequest
		if err := unmarshalIfPresent(params, &req); err != nil {
			return nil, err
		}
		return mgr.ExposeFiles(ctx, req)
	case "get":
		var req domain.GetRequest
		if err := unmarshalIfPresent(params, &req); err != nil {
			return nil, err
		}
		return mgr.Get(req)
	case "list":
		return mgr.List()
	case "stop":
		var req domain.StopRequest
		if err := unmarshalIfPresent(params, &req); err != nil {
			return nil, err
		}
		return mgr.Stop(req.IDs), nil
	case "logs":
		var req domain.LogsRequest
		if err := unmarshalIfPresent(params, &req); err != nil {
			return nil, err
		}
		return mgr.Logs(req)
	case "update_policy":
		return mgr.UpdatePolicy(params)
	case "audit_query":
		var filter domain.AuditQueryFilter
		if err := unmarshalIfPresent(params, &filter); err != nil {
			return nil, err
		}
		return mgr.AuditQuery(filter)
	case "audit_export":
		var req domain.AuditExportRequest
		if err := unmarshalIfPresent(params, &req); err != nil {
			return nil, err
		}
		return mgr.AuditExport(req)
	case "run_gc":
		return mgr.RunGC()
	default:
		return nil, domain.NewError(domain.KindInvalidInput, "dispatch", "unknown operation %q", tool)
	}
}

// holdsSession reports whether tool starts a long-lived exposure that
// should keep this process alive so the tunnel and origin it just spawned
// aren't orphaned the instant the CLI exits.
func holdsSession(tool string) bool {
	return tool == "expose_port" || tool == "expose_files"
}

func unmarshalIfPresent(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.NewError(domain.KindInvalidInput, "params", "invalid params json: %s", err)
	}
	return nil
}

func loadJSONInput(raw, path string) ([]byte, error) {
	if raw != "" {
		return []byte(raw), nil
	}
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func errorEnvelope(err error) map[string]any {
	if de, ok := err.(*domain.Error); ok {
		body := map[string]any{"error": string(de.Kind), "message": de.Error()}
		if de.SessionID != "" {
			body["id"] = de.SessionID
		}
		return body
	}
	return map[string]any{"error": "internal_error", "message": err.Error()}
}

func writeJSON(w io.Writer, v any, pretty bool) {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `exposemgr - ephemeral public HTTPS exposure manager

Usage:
  exposemgr <operation> [flags]

Operations:
  env_check      expose_port     expose_files    get
  list           stop            logs            update_policy
  audit_query    audit_export    run_gc

Flags:
  --params JSON            inline operation parameters
  --params-file PATH       operation parameters from a file
  --config JSON            inline policy config patch
  --config-file PATH       policy config patch from a file
  --workspace-dir PATH     override the state directory
  --tunnel-binary NAME     quick-tunnel agent binary (default cloudflared)
  --keep-alive             block after expose_port/expose_files until interrupted
  --no-keep-alive          never block, even for expose operations
  --compact                force single-line JSON output`)
}
