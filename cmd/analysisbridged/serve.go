package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"analysisbridge/internal/bridge"
	"analysisbridge/internal/checkerpool"
	"analysisbridge/internal/config"
	"analysisbridge/internal/linterpool"
	"analysisbridge/internal/observ"
	"analysisbridge/internal/prof"
	"analysisbridge/internal/queue"
	"analysisbridge/internal/structlog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator against newline-delimited JSON requests on stdin",
	Long:  `serve is a stand-in for the real editor transport: it loads a config, wires up the bridge and both pools, and drives analyze/invalidate/clearCache/reload-config/inspector-data from stdin, one JSON object per line.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("cpuprofile", "", "write a CPU profile of the coordinator itself to this path on shutdown")
	serveCmd.Flags().String("memprofile", "", "write a heap profile of the coordinator itself to this path on shutdown")
}

// wireRequest is one line of the stdio harness's request protocol.
type wireRequest struct {
	ID       string `json:"id"`
	Op       string `json:"op"`
	URI      string `json:"uri,omitempty"`
	Content  string `json:"content,omitempty"`
	Force    bool   `json:"force,omitempty"`
	Priority int    `json:"priority,omitempty"`
	Path     string `json:"path,omitempty"` // reload-config
	Line     int    `json:"line,omitempty"` // typeInfo
	Column   int    `json:"column,omitempty"`
}

type wireResponse struct {
	ID     string      `json:"id"`
	Op     string      `json:"op"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cpuProfilePath, _ := cmd.Flags().GetString("cpuprofile")
	if cpuProfilePath != "" {
		if err := prof.StartCPU(cpuProfilePath); err != nil {
			return fmt.Errorf("starting cpu profile: %w", err)
		}
		defer prof.StopCPU()
	}
	memProfilePath, _ := cmd.Flags().GetString("memprofile")
	if memProfilePath != "" {
		defer func() {
			if err := prof.WriteMem(memProfilePath); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "writing memory profile: %v\n", err)
			}
		}()
	}

	timer := observ.NewTimer()

	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	loadPhase := timer.Begin("load-config")
	cfg, err := loadConfigOrDefault(cfgPath)
	timer.End(loadPhase, cfgPath)
	if err != nil {
		return err
	}

	spawnPhase := timer.Begin("spawn-pools")
	b, cleanup, err := buildBridge(cfg)
	timer.End(spawnPhase, "")
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintln(cmd.ErrOrStderr(), timer.Summary())

	return serveStdio(cmd.InOrStdin(), cmd.OutOrStdout(), b, &cfgPath)
}

func loadConfigOrDefault(path string) (bridge.Config, error) {
	if path == "" {
		return bridge.DefaultConfig(), nil
	}
	return config.Load(path)
}

// buildBridge wires the logger, both pools, and the bridge itself. A pool
// whose config disables it is left nil. A checker pool whose processes
// fail to spawn is also left nil, and the bridge is marked degraded rather
// than failing startup outright.
func buildBridge(cfg bridge.Config) (*bridge.Bridge, func(), error) {
	var fileSink *structlog.FileSink
	if cfg.Logging.File != "" {
		var err error
		fileSink, err = structlog.NewFileSink(cfg.Logging.File, config.MegabytesToBytes(cfg.Logging.MaxFileSizeMb))
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
	}

	logger := structlog.New(func(batch []structlog.Entry) {
		if cfg.Logging.PrettyPrint {
			structlog.PrettyPrint(os.Stderr, batch)
		}
		if fileSink != nil {
			fileSink.Write(batch)
		}
	})

	var checkerPool *checkerpool.Pool
	degraded := false
	if cfg.Checker.Enabled {
		p, err := checkerpool.Start(checkerpool.Config{
			BinaryPath:    cfg.Checker.BinaryPath,
			Args:          cfg.Checker.Flags,
			FileTimeout:   time.Duration(cfg.Checker.FileTimeoutMs) * time.Millisecond,
			MaxTypeDepth:  cfg.Checker.MaxTypeDepth,
			MaxMemoryMb:   cfg.Checker.MaxMemoryMb,
		})
		if err != nil {
			logger.Error("checker pool failed to start", map[string]string{"error": err.Error()})
			degraded = true
		} else {
			checkerPool = p
		}
	}

	var linterPool *linterpool.Pool
	if cfg.Linter.Enabled {
		disabled, warn, deny := cfg.Linter.RuleSlices()
		linterPool = linterpool.New(linterpool.Config{
			BinaryPath:     cfg.Linter.BinaryPath,
			ConfigPath:     cfg.Linter.ConfigPath,
			ProcessTimeout: time.Duration(cfg.Linter.FileTimeoutMs) * time.Millisecond,
			DisabledRules:  disabled,
			WarnRules:      warn,
			DenyRules:      deny,
		})
	}

	b := bridge.New(cfg, checkerPool, linterPool, logger)
	if degraded {
		b.MarkDegraded()
	}
	b.Start()

	cleanup := func() {
		b.Shutdown()
		if fileSink != nil {
			_ = fileSink.Close()
		}
	}
	return b, cleanup, nil
}

func serveStdio(in io.Reader, out io.Writer, b *bridge.Bridge, cfgPath *string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req wireRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(wireResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		resp := handleRequest(b, cfgPath, req)
		_ = enc.Encode(resp)
	}
	return scanner.Err()
}

func handleRequest(b *bridge.Bridge, cfgPath *string, req wireRequest) wireResponse {
	resp := wireResponse{ID: req.ID, Op: req.Op}

	switch req.Op {
	case "analyze":
		res, err := b.Analyze(context.Background(), req.URI, []byte(req.Content), req.Force, queue.Priority(req.Priority))
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Result = res
	case "invalidate":
		b.Invalidate(req.URI)
	case "clearCache":
		b.ClearCache()
	case "reload-config":
		path := req.Path
		if path == "" {
			path = *cfgPath
		}
		cfg, err := loadConfigOrDefault(path)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		b.UpdateConfig(cfg)
		*cfgPath = path
	case "typeInfo":
		rendered, err := b.TypeInfo(context.Background(), req.URI, req.Content, req.Line, req.Column)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Result = rendered
	case "inspector-data":
		resp.Result = b.Inspect()
	default:
		resp.Error = fmt.Sprintf("unrecognized op %q", req.Op)
	}
	return resp
}
