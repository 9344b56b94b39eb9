package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/config"
	"github.com/russellyou/nadel/internal/engine"
	"github.com/russellyou/nadel/internal/eventbus"
	"github.com/russellyou/nadel/internal/grpctp"
	"github.com/russellyou/nadel/internal/httptp"
	"github.com/russellyou/nadel/internal/metrics"
	"github.com/russellyou/nadel/internal/otel"
	"github.com/russellyou/nadel/internal/schema"
	"github.com/russellyou/nadel/internal/server"
	"github.com/russellyou/nadel/internal/service"
)

const rootUsage = `nadel: GraphQL stitching gateway

USAGE:
  nadel <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway in front of the services
  check            Build the execution blueprint and report mapping errors
  compile-sdl      Print the overall schema clients see
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                      YAML configuration file
  -schema.root <dir>                  Schema root (default: .)
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.metadata-header <name>      Forward HTTP header to services. Repeatable
  -transport.backend <svc=host:port>  Reach a service over gRPC. Repeatable
  -transport.url <svc=url>            Reach a service over GraphQL-over-HTTP. Repeatable
  -transport.max-conns-per-endpoint N Max gRPC conns per endpoint (default: 2)
  -transport.rpc-timeout <duration>   Default service call timeout (default: 3s)
  -engine.grace-period <duration>     Shutdown grace period (default: 60s)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: nadel)
  -log.dev                            Human-readable development logging
Flags override the configuration file.
`

const checkUsage = `check FLAGS:
  -config <file>           YAML configuration file; also checks service transports
  -schema.root <dir>       Schema root (default: .)
  (Exits non-zero when the schemas do not map onto each other)
`

const compileSDLUsage = `compile-sdl FLAGS:
  -config <file>           YAML configuration file
  -schema.root <dir>       Schema root (default: .)
  -out  <file>             Write the schema to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("nadel", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "compile-sdl":
		return cmdCompileSDL(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "check":
		fmt.Print(checkUsage)
	case "compile-sdl":
		fmt.Print(compileSDLUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// mappingFlag collects repeatable name=value flags.
type mappingFlag struct {
	m map[string][]string
}

func (b *mappingFlag) String() string { return "" }

func (b *mappingFlag) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid mapping %q", v)
	}
	name := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if name == "" || value == "" {
		return fmt.Errorf("invalid mapping %q", v)
	}
	if b.m == nil {
		b.m = map[string][]string{}
	}
	b.m[name] = append(b.m[name], value)
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// commonFlags are shared by every command reading schemas.
type commonFlags struct {
	configFile string
	schemaRoot string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&c.schemaRoot, "schema.root", "", "Schema root")
}

func (c *commonFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if c.configFile != "" {
		var err error
		if cfg, err = config.Load(c.configFile); err != nil {
			return nil, err
		}
	}
	if c.schemaRoot != "" {
		cfg.Schema.Root = c.schemaRoot
	}
	return cfg, nil
}

func loadBlueprint(ctx context.Context, root string) (*blueprint.Blueprint, error) {
	discovery, err := schema.NewFileSystemDiscovery(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("discover schemas: %w", err)
	}
	set, err := schema.Load(ctx, discovery)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	return blueprint.New(set)
}

func cmdServe(args []string) error {
	var common commonFlags
	var (
		addr         string
		pretty       bool
		timeout      time.Duration
		maxConns     int
		rpcTimeout   time.Duration
		gracePeriod  time.Duration
		otelEndpoint string
		otelService  string
		logDev       bool
		headers      stringListFlag
		backends     mappingFlag
		urls         mappingFlag
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&addr, "server.addr", "", "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", false, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", 0, "Per-request timeout")
	fs.Var(&headers, "server.metadata-header", "Forward HTTP header to services")
	fs.Var(&backends, "transport.backend", "Reach a service over gRPC")
	fs.Var(&urls, "transport.url", "Reach a service over GraphQL-over-HTTP")
	fs.IntVar(&maxConns, "transport.max-conns-per-endpoint", 0, "Max conns per endpoint")
	fs.DurationVar(&rpcTimeout, "transport.rpc-timeout", 0, "Default service call timeout")
	fs.DurationVar(&gracePeriod, "engine.grace-period", 0, "Shutdown grace period")
	fs.StringVar(&otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", "", "OpenTelemetry service name")
	fs.BoolVar(&logDev, "log.dev", false, "Development logging")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	// Only flags given on the command line override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server.addr":
			cfg.Server.Addr = addr
		case "server.pretty":
			cfg.Server.Pretty = pretty
		case "server.timeout":
			cfg.Server.Timeout = timeout
		case "server.metadata-header":
			cfg.Server.MetadataHeaders = headers
		case "transport.max-conns-per-endpoint":
			cfg.Transport.GRPC.MaxConnsPerEndpoint = maxConns
		case "transport.rpc-timeout":
			cfg.Transport.GRPC.RPCTimeout = rpcTimeout
			cfg.Transport.HTTP.Timeout = rpcTimeout
		case "engine.grace-period":
			cfg.Engine.GracePeriod = gracePeriod
		case "otel.endpoint":
			cfg.Otel.Endpoint = otelEndpoint
		case "otel.service":
			cfg.Otel.Service = otelService
		case "log.dev":
			cfg.Log.Development = logDev
		}
	})
	for name, eps := range backends.m {
		cfg.Services[name] = config.ServiceConfig{GRPC: eps}
	}
	for name, u := range urls.m {
		cfg.Services[name] = config.ServiceConfig{URL: u[len(u)-1]}
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger, ln)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// serve runs the gateway on ln until ctx is done, then drains it.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, ln net.Listener) error {
	bp, err := loadBlueprint(ctx, cfg.Schema.Root)
	if err != nil {
		return err
	}
	if err := cfg.Validate(bp.Services()); err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)
	shutdownOtel, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	_, unregisterMetrics, err := metrics.Register(registry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer unregisterMetrics()

	endpoints := map[string][]string{}
	urls := map[string]string{}
	for name, sc := range cfg.Services {
		if len(sc.GRPC) > 0 {
			endpoints[name] = sc.GRPC
		} else {
			urls[name] = sc.URL
		}
	}
	grpcOpts := []grpctp.Option{
		grpctp.WithProvider(grpctp.NewStaticEndpoints(endpoints)),
		grpctp.WithMaxConnsPerEndpoint(cfg.Transport.GRPC.MaxConnsPerEndpoint),
		grpctp.WithRPCTimeout(cfg.Transport.GRPC.RPCTimeout),
		grpctp.WithLogger(logger.Named("grpc")),
	}
	if cfg.Transport.GRPC.ForwardMetadata {
		grpcOpts = append(grpcOpts, grpctp.WithForwardMetadata())
	}
	grpcTransport := grpctp.New(grpcOpts...)
	defer grpcTransport.Close()

	httpOpts := []httptp.Option{
		httptp.WithTimeout(cfg.Transport.HTTP.Timeout),
		httptp.WithLogger(logger.Named("http")),
	}
	if cfg.Transport.HTTP.ForwardMetadata {
		httpOpts = append(httpOpts, httptp.WithForwardMetadata())
	}
	for k, v := range cfg.Transport.HTTP.Headers {
		httpOpts = append(httpOpts, httptp.WithHeader(k, v))
	}
	httpTransport := httptp.New(urls, httpOpts...)

	var services []*service.Service
	for _, name := range bp.Services() {
		s := &service.Service{Name: name}
		if _, ok := endpoints[name]; ok {
			s.Execution = grpcTransport.Execution(name)
		} else {
			s.Execution = httpTransport.Execution(name)
		}
		services = append(services, s)
	}

	e, err := engine.New(bp, services,
		engine.WithLogger(logger.Named("engine")),
		engine.WithGracePeriod(cfg.Engine.GracePeriod),
		engine.WithDocumentCacheSize(cfg.Engine.DocumentCacheSize),
	)
	if err != nil {
		return err
	}

	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithLogger(logger.Named("server")),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(e, sopts...))
	if cfg.Metrics.Path != "" {
		mux.Handle(cfg.Metrics.Path, metrics.Handler(registry))
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("gateway listening",
		zap.String("addr", ln.Addr().String()),
		zap.Strings("services", bp.Services()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("gracePeriod", cfg.Engine.GracePeriod))
	drain, cancel := context.WithTimeout(context.Background(), cfg.Engine.GracePeriod)
	defer cancel()
	if err := e.Close(drain); err != nil {
		logger.Warn("engine close", zap.Error(err))
	}
	if err := srv.Shutdown(drain); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cmdCheck(args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	bp, err := loadBlueprint(context.Background(), cfg.Schema.Root)
	if err != nil {
		return err
	}
	if common.configFile != "" {
		if err := cfg.Validate(bp.Services()); err != nil {
			return err
		}
	}
	fmt.Printf("ok: %d services (%s)\n", len(bp.Services()), strings.Join(bp.Services(), ", "))
	return nil
}

func cmdCompileSDL(args []string) error {
	var common commonFlags
	outFile := ""
	fs := flag.NewFlagSet("compile-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&outFile, "out", outFile, "Write the schema to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, compileSDLUsage)
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	bp, err := loadBlueprint(context.Background(), cfg.Schema.Root)
	if err != nil {
		return err
	}
	sdl := schema.Render(bp.Overall())
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}
