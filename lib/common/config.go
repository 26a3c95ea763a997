package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Coordinator configuration struct
// --------------------------------------------------------------------------

type StoreType string

const (
	StoreTypeMemory StoreType = "mem"
	StoreTypeBolt   StoreType = "bolt"
)

// CoordinatorConfig holds everything needed to build an update coordinator
// and its store.
type CoordinatorConfig struct {
	// gate settings
	Buckets     int           // number of gate buckets
	LockTimeout time.Duration // max wait for a busy document (0 = until the context ends)
	WaitSlice   time.Duration // re-check interval of waiting updates

	// document settings
	IDField string // name of the unique key field

	// storage
	Store       StoreType
	DataDir     string
	Compression string // none, lz4 or zstd

	// Logging configuration
	LogLevel string
}

// DefaultCoordinatorConfig returns the defaults used by the CLI.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Buckets:     64,
		LockTimeout: 5 * time.Second,
		WaitSlice:   250 * time.Millisecond,
		IDField:     "id",
		Store:       StoreTypeMemory,
		DataDir:     "./data",
		Compression: "none",
		LogLevel:    "info",
	}
}

// Validate reports the first invalid setting.
func (c *CoordinatorConfig) Validate() error {
	switch {
	case c.Buckets < 1:
		return fmt.Errorf("buckets must be at least 1, got %d", c.Buckets)
	case c.LockTimeout < 0:
		return errors.New("lock timeout must not be negative")
	case c.WaitSlice <= 0:
		return errors.New("wait slice must be positive")
	case c.IDField == "":
		return errors.New("id field must not be empty")
	}
	switch c.Store {
	case StoreTypeMemory:
	case StoreTypeBolt:
		if c.DataDir == "" {
			return errors.New("bolt store needs a data directory")
		}
	default:
		return fmt.Errorf("unknown store type %q (expected mem or bolt)", c.Store)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *CoordinatorConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Update Gate")
	addField("Buckets", strconv.Itoa(c.Buckets))
	if c.LockTimeout == 0 {
		addField("Lock Timeout", "none")
	} else {
		addField("Lock Timeout", c.LockTimeout.String())
	}
	addField("Wait Slice", c.WaitSlice.String())

	addSection("Documents")
	addField("ID Field", c.IDField)

	addSection("Storage")
	addField("Store", string(c.Store))
	if c.Store == StoreTypeBolt {
		addField("Data Directory", c.DataDir)
	}
	addField("Compression", c.Compression)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
