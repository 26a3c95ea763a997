package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/bstore"
	"github.com/ValentinKolb/dDoc/lib/store/compress"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// BoltFile is the database file name inside the data directory
	BoltFile = "ddoc.db"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and sets up viper's environment binding
// (DDOC_<FLAG>, dashes replaced by underscores).
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("ddoc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags (including inherited persistent
// flags, which cobra merges before the pre-run hooks) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupCoordinatorFlags adds the coordinator and store flags to a command
func SetupCoordinatorFlags(cmd *cobra.Command) {
	def := common.DefaultCoordinatorConfig()

	key := "buckets"
	cmd.PersistentFlags().Int(key, def.Buckets, WrapString("Number of version buckets. Updates of documents in different buckets never contend"))

	key = "lock-timeout"
	cmd.PersistentFlags().Duration(key, def.LockTimeout, WrapString("How long an update waits for a busy document (0 waits until the command is cancelled)"))

	key = "wait-slice"
	cmd.PersistentFlags().Duration(key, def.WaitSlice, WrapString("Interval at which waiting updates re-check their document"))

	key = "id-field"
	cmd.PersistentFlags().String(key, def.IDField, WrapString("Name of the unique key field of documents"))

	key = "store"
	cmd.PersistentFlags().String(key, string(def.Store), WrapString("Document store to use (mem, bolt)"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, def.DataDir, WrapString("Directory of the bolt database"))

	key = "compression"
	cmd.PersistentFlags().String(key, def.Compression, WrapString("Compression of stored documents (none, lz4, zstd)"))
}

// GetCoordinatorConfig reads the coordinator configuration from viper
func GetCoordinatorConfig() common.CoordinatorConfig {
	return common.CoordinatorConfig{
		Buckets:     viper.GetInt("buckets"),
		LockTimeout: viper.GetDuration("lock-timeout"),
		WaitSlice:   viper.GetDuration("wait-slice"),
		IDField:     viper.GetString("id-field"),
		Store:       common.StoreType(viper.GetString("store")),
		DataDir:     viper.GetString("data-dir"),
		Compression: viper.GetString("compression"),
		LogLevel:    viper.GetString("log-level"),
	}
}

// OpenStore creates the store selected by conf, wrapped for compression if
// requested.
func OpenStore(conf common.CoordinatorConfig) (store.IStore, error) {
	algo, err := compress.ParseAlgorithm(conf.Compression)
	if err != nil {
		return nil, err
	}

	var s store.IStore
	switch conf.Store {
	case common.StoreTypeMemory:
		s = lstore.NewLocalStore(nil)
	case common.StoreTypeBolt:
		if err := os.MkdirAll(conf.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err = bstore.NewBoltStore(filepath.Join(conf.DataDir, BoltFile), nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid store %q", conf.Store)
	}

	if algo != compress.None {
		s = compress.NewCompressedStore(s, algo)
	}
	return s, nil
}
