// Package config holds the viper-backed process configuration: which
// backends are enabled, where they live and the shared result-display knobs.
package config

import (
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

// Snapshot of the configuration read at startup. The only runtime mutation
// is DisableBackend, which also persists the flag so a misconfigured backend
// is not retried on every future process start.
var (
	CalibreEnabled bool
	CalibreURL     string

	ArchiveEnabled bool
	ArchiveURL     string

	Liber3Enabled bool
	Liber3URL     string
	IPFSGateway   string

	ZlibEnabled  bool
	ZlibURL      string
	ZlibEmail    string
	ZlibPassword string

	AnnasEnabled bool
	AnnasURL     string

	// DefaultLimit is used when a search command gives no (or a
	// non-numeric) result limit.
	DefaultLimit int
	// ChunkSize caps entries per rendered batch; the transport's payload
	// limit, not a preference.
	ChunkSize int
	// TempDir receives downloaded files before handoff to the transport.
	TempDir string
	// DownloadDir is where the CLI file transport stores attachments.
	DownloadDir string
)

// SetDefaults registers every known key with its default value.
func SetDefaults() {
	viper.SetDefault("calibre.enabled", false)
	viper.SetDefault("calibre.url", "http://127.0.0.1:8083")

	viper.SetDefault("archive.enabled", true)
	viper.SetDefault("archive.url", "https://archive.org")

	viper.SetDefault("liber3.enabled", true)
	viper.SetDefault("liber3.url", "https://lgate.glitternode.ru")
	viper.SetDefault("liber3.gateway", "https://gateway-ipfs.st")

	viper.SetDefault("zlib.enabled", false)
	viper.SetDefault("zlib.url", "https://z-library.sk")
	viper.SetDefault("zlib.email", "")
	viper.SetDefault("zlib.password", "")

	viper.SetDefault("annas.enabled", true)
	viper.SetDefault("annas.url", "https://annas-archive.org")

	viper.SetDefault("defaultlimit", 20)
	viper.SetDefault("chunksize", 30)
	viper.SetDefault("tempdir", os.TempDir())
	viper.SetDefault("downloaddir", "./downloads")
}

// InitConfig copies the viper state into the package-level snapshot.
func InitConfig() {
	SetDefaults()

	CalibreEnabled = viper.GetBool("calibre.enabled")
	CalibreURL = viper.GetString("calibre.url")

	ArchiveEnabled = viper.GetBool("archive.enabled")
	ArchiveURL = viper.GetString("archive.url")

	Liber3Enabled = viper.GetBool("liber3.enabled")
	Liber3URL = viper.GetString("liber3.url")
	IPFSGateway = viper.GetString("liber3.gateway")

	ZlibEnabled = viper.GetBool("zlib.enabled")
	ZlibURL = viper.GetString("zlib.url")
	ZlibEmail = viper.GetString("zlib.email")
	ZlibPassword = viper.GetString("zlib.password")

	AnnasEnabled = viper.GetBool("annas.enabled")
	AnnasURL = viper.GetString("annas.url")

	DefaultLimit = viper.GetInt("defaultlimit")
	ChunkSize = viper.GetInt("chunksize")
	TempDir = viper.GetString("tempdir")
	DownloadDir = viper.GetString("downloaddir")
}

// DisableBackend turns a backend off for this process and persists the flag.
// A failed config write is logged, not fatal; the in-memory flag still wins.
func DisableBackend(backend, reason string) {
	slog.Info("Disabling backend", "backend", backend, "reason", reason)
	viper.Set(backend+".enabled", false)
	if err := viper.WriteConfig(); err != nil {
		slog.Error("Failed to persist disabled backend", "backend", backend, "error", err)
	}
	InitConfig()
}
