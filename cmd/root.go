package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"bookferry/internal/aggregate"
	"bookferry/internal/classify"
	"bookferry/internal/config"
	"bookferry/internal/render"
	"bookferry/internal/source"
	"bookferry/internal/source/annas"
	"bookferry/internal/source/archive"
	"bookferry/internal/source/calibre"
	"bookferry/internal/source/liber3"
	"bookferry/internal/source/zlib"
)

// Backend constructors and output surfaces live in swappable vars so command
// tests can substitute fakes without touching the network.
var (
	newCalibre = func() *calibre.Adapter {
		return calibre.New(config.CalibreURL, config.CalibreEnabled, config.DefaultLimit)
	}
	newArchive = func() *archive.Adapter {
		return archive.New(config.ArchiveURL, config.ArchiveEnabled, config.DefaultLimit, config.TempDir)
	}
	newLiber3 = func() *liber3.Adapter {
		return liber3.New(config.Liber3URL, config.IPFSGateway, config.Liber3Enabled, config.DefaultLimit)
	}
	newZlib = func() *zlib.Adapter {
		return zlib.New(zlib.Options{
			BaseURL:  config.ZlibURL,
			Enabled:  config.ZlibEnabled,
			Email:    config.ZlibEmail,
			Password: config.ZlibPassword,
			Limit:    config.DefaultLimit,
			TempDir:  config.TempDir,
			Disable:  func(reason string) { config.DisableBackend("zlib", reason) },
		}, zlib.NewClient(config.ZlibURL))
	}
	newAnnas = func() *annas.Adapter {
		return annas.New(config.AnnasURL, config.AnnasEnabled, config.DefaultLimit)
	}

	newSink = func() render.Sink {
		return render.NewConsoleSink()
	}
	newTransport = func() render.AttachmentTransport {
		return render.NewFileTransport(config.DownloadDir)
	}
)

// CLI is the complete command structure for bookferry.
type CLI struct {
	Debug     bool `help:"Enable debug logging"`
	ChunkSize int  `help:"Override entries per result batch (default from config)"`

	Search   SearchCmd   `cmd:"" help:"Search every enabled backend at once"`
	Download DownloadCmd `cmd:"" help:"Download an ebook by any supported reference"`

	Calibre CalibreCmd `cmd:"" help:"Calibre-Web OPDS catalog commands"`
	Archive ArchiveCmd `cmd:"" help:"archive.org text collection commands"`
	Liber3  Liber3Cmd  `cmd:"" help:"Liber3 distributed index commands"`
	Zlib    ZlibCmd    `cmd:"" help:"Z-Library commands (account required)"`
	Annas   AnnasCmd   `cmd:"" help:"Anna's Archive commands"`
}

// SearchCmd fans the query out over every enabled backend.
type SearchCmd struct {
	Query string `arg:"" help:"Search keywords"`
	Limit string `arg:"" optional:"" help:"Per-backend result limit (1-100)"`
}

func (c *SearchCmd) Run() error {
	sources := []source.Source{
		newCalibre(), newArchive(), newLiber3(), newZlib(), newAnnas(),
	}
	entries := aggregate.New(sources).Search(context.Background(), c.Query, c.Limit)
	if len(entries) == 0 {
		return newSink().Plain("no backends are enabled, check the config file")
	}
	return newSink().Batches(render.Chunk(entries, config.ChunkSize))
}

// DownloadCmd routes a download reference to the backend that owns it.
type DownloadCmd struct {
	Ref  string `arg:"" help:"Download reference: URL, tagged ID, or Z-Library ID"`
	Hash string `arg:"" optional:"" help:"Z-Library content hash (with a numeric ID)"`
}

func (c *DownloadCmd) Run() error {
	backend, err := classify.Classify(c.Ref, c.Hash)
	if err != nil {
		return fmt.Errorf("%w; %s", err, classify.AcceptedShapes)
	}

	ctx := context.Background()
	transport := newTransport()
	switch backend {
	case classify.Zlib:
		return newZlib().Download(ctx, c.Ref, c.Hash, transport)
	case classify.Calibre:
		return newCalibre().Download(ctx, c.Ref, transport)
	case classify.Archive:
		return newArchive().Download(ctx, c.Ref, transport)
	case classify.Liber3:
		return newLiber3().Download(ctx, c.Ref, transport)
	case classify.Annas:
		return newAnnas().Download(ctx, c.Ref, transport)
	default:
		return fmt.Errorf("no backend for reference %q", c.Ref)
	}
}

// CalibreCmd groups the Calibre-Web subcommands.
type CalibreCmd struct {
	Search    CalibreSearchCmd    `cmd:"" help:"Search the OPDS catalog"`
	Download  CalibreDownloadCmd  `cmd:"" help:"Download a book by its acquisition URL"`
	Recommend CalibreRecommendCmd `cmd:"" help:"Pick random books from the catalog"`
}

type CalibreSearchCmd struct {
	Query string `arg:"" help:"Search keywords"`
	Limit string `arg:"" optional:"" help:"Result limit (1-100)"`
}

func (c *CalibreSearchCmd) Run() error {
	src := newCalibre()
	return renderResult(src.Name(), src.Search(context.Background(), c.Query, c.Limit))
}

type CalibreDownloadCmd struct {
	URL string `arg:"" help:"OPDS acquisition URL (contains /opds/download/)"`
}

func (c *CalibreDownloadCmd) Run() error {
	return newCalibre().Download(context.Background(), c.URL, newTransport())
}

type CalibreRecommendCmd struct {
	Count string `arg:"" optional:"" help:"Number of random books (1-100)"`
}

func (c *CalibreRecommendCmd) Run() error {
	n, err := source.Limit(c.Count, config.DefaultLimit)
	if err != nil {
		return err
	}
	src := newCalibre()
	return renderResult(src.Name(), src.Recommend(context.Background(), n))
}

// ArchiveCmd groups the archive.org subcommands.
type ArchiveCmd struct {
	Search   ArchiveSearchCmd   `cmd:"" help:"Search the texts collection"`
	Download ArchiveDownloadCmd `cmd:"" help:"Download a book by its archive.org URL"`
}

type ArchiveSearchCmd struct {
	Query string `arg:"" help:"Search keywords"`
	Limit string `arg:"" optional:"" help:"Result limit (1-100)"`
}

func (c *ArchiveSearchCmd) Run() error {
	src := newArchive()
	return renderResult(src.Name(), src.Search(context.Background(), c.Query, c.Limit))
}

type ArchiveDownloadCmd struct {
	URL string `arg:"" help:"https://archive.org/download/<item>/<file> URL"`
}

func (c *ArchiveDownloadCmd) Run() error {
	return newArchive().Download(context.Background(), c.URL, newTransport())
}

// Liber3Cmd groups the Liber3 subcommands.
type Liber3Cmd struct {
	Search   Liber3SearchCmd   `cmd:"" help:"Search the distributed index"`
	Download Liber3DownloadCmd `cmd:"" help:"Resolve an ebook to an IPFS gateway URL"`
}

type Liber3SearchCmd struct {
	Query string `arg:"" help:"Search keywords"`
	Limit string `arg:"" optional:"" help:"Result limit (1-100)"`
}

func (c *Liber3SearchCmd) Run() error {
	src := newLiber3()
	return renderResult(src.Name(), src.Search(context.Background(), c.Query, c.Limit))
}

type Liber3DownloadCmd struct {
	ID string `arg:"" help:"Tagged ebook ID (L followed by 32 hex characters)"`
}

func (c *Liber3DownloadCmd) Run() error {
	return newLiber3().Download(context.Background(), c.ID, newTransport())
}

// ZlibCmd groups the Z-Library subcommands.
type ZlibCmd struct {
	Search   ZlibSearchCmd   `cmd:"" help:"Search Z-Library"`
	Download ZlibDownloadCmd `cmd:"" help:"Download a book by its ID and hash"`
}

type ZlibSearchCmd struct {
	Query string `arg:"" help:"Search keywords"`
	Limit string `arg:"" optional:"" help:"Result limit (1-100)"`
}

func (c *ZlibSearchCmd) Run() error {
	src := newZlib()
	return renderResult(src.Name(), src.Search(context.Background(), c.Query, c.Limit))
}

type ZlibDownloadCmd struct {
	ID   string `arg:"" help:"Numeric book ID"`
	Hash string `arg:"" help:"6-character content hash"`
}

func (c *ZlibDownloadCmd) Run() error {
	return newZlib().Download(context.Background(), c.ID, c.Hash, newTransport())
}

// AnnasCmd groups the Anna's Archive subcommands.
type AnnasCmd struct {
	Search   AnnasSearchCmd   `cmd:"" help:"Search Anna's Archive"`
	Download AnnasDownloadCmd `cmd:"" help:"List the mirror links for an ebook"`
}

type AnnasSearchCmd struct {
	Query string `arg:"" help:"Search keywords"`
	Limit string `arg:"" optional:"" help:"Result limit (1-100)"`
}

func (c *AnnasSearchCmd) Run() error {
	src := newAnnas()
	return renderResult(src.Name(), src.Search(context.Background(), c.Query, c.Limit))
}

type AnnasDownloadCmd struct {
	ID string `arg:"" help:"Tagged ebook ID (A followed by 32 hex characters)"`
}

func (c *AnnasDownloadCmd) Run() error {
	return newAnnas().Download(context.Background(), c.ID, newTransport())
}

// renderResult pushes a single backend's result through the shared chunked
// rendering path so single-source and aggregate output look the same.
func renderResult(sourceName string, res render.Result) error {
	entries := render.Entries(sourceName, res)
	return newSink().Batches(render.Chunk(entries, config.ChunkSize))
}

// Execute runs the Kong-based CLI.
func Execute() {
	initLogging(slog.LevelInfo)
	initConfig()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bookferry"),
		kong.Description("Search and fetch ebooks across catalog, archive and index backends."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()
	for key, env := range map[string]string{
		"zlib.email":    "ZLIB_EMAIL",
		"zlib.password": "ZLIB_PASSWORD",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			slog.Error("Failed to bind environment variable", "key", key, "error", err)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file...")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Error("Error writing config file", "error", err)
			}
			os.Exit(0)
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	if cli.Debug {
		initLogging(slog.LevelDebug)
	}
	if cli.ChunkSize > 0 {
		viper.Set("chunksize", cli.ChunkSize)
		config.InitConfig()
	}
}

func initLogging(level slog.Level) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
