// Package config loads the migration engine's configuration: tenant
// connections, pool sizing, and import options, layered through viper so
// environment variables and an explicit config file both apply without
// the rest of the program needing to know which one won.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys, namespaced by section.
const (
	KeyPoolMaxSize        = "pool.max-size"
	KeyPoolAcquireTimeout = "pool.acquire-timeout"

	KeyImportMode                  = "import.mode"
	KeyImportBatchSize             = "import.batch-size"
	KeyImportMaxParallelEntities   = "import.max-parallel-entities"
	KeyImportContinueOnError       = "import.continue-on-error"
	KeyImportSkipMissingColumns    = "import.skip-missing-columns"
	KeyImportStripOwnerFields      = "import.strip-owner-fields"
	KeyImportUseBulkApis           = "import.use-bulk-apis"
	KeyImportRespectDisablePlugins = "import.respect-disable-plugins"
	KeyImportCurrentUserID         = "import.current-user-id"
	KeyImportFallbackToCurrentUser = "import.fallback-to-current-user"

	KeyImportBypassCustomSync                        = "import.bypass-custom-sync"
	KeyImportBypassCustomAsync                       = "import.bypass-custom-async"
	KeyImportSuppressCallbackRegistrationExpanderJob = "import.suppress-callback-registration-expander-job"
	KeyImportSuppressDuplicateDetection              = "import.suppress-duplicate-detection"
	KeyImportTag                                     = "import.tag"
	KeyImportUserMappings                            = "import.user-mappings"

	KeyTelemetryServiceName = "telemetry.service-name"
)

// v is the package's global viper instance. Initialize must run before
// any Get* call; every Get* tolerates a nil v by returning the zero
// value, matching how the rest of this codebase treats an
// uninitialized collaborator as "not configured" rather than panicking.
var v *viper.Viper

// Initialize builds the global viper instance and registers defaults.
// When configPath is non-empty, its contents are read and layered over
// the defaults; environment variables under the DVMIGRATE_ prefix (for
// example DVMIGRATE_POOL_MAX_SIZE for pool.max-size) are layered over
// both.
func Initialize(configPath string) error {
	v = viper.New()
	registerDefaults(v)

	v.SetEnvPrefix("dvmigrate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		return nil
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", configPath, err)
	}
	return nil
}

func registerDefaults(v *viper.Viper) {
	v.SetDefault(KeyPoolMaxSize, 10)
	v.SetDefault(KeyPoolAcquireTimeout, "30s")

	v.SetDefault(KeyImportMode, "upsert")
	v.SetDefault(KeyImportBatchSize, 100)
	v.SetDefault(KeyImportMaxParallelEntities, 4)
	v.SetDefault(KeyImportContinueOnError, true)
	v.SetDefault(KeyImportSkipMissingColumns, false)
	v.SetDefault(KeyImportStripOwnerFields, false)
	v.SetDefault(KeyImportUseBulkApis, true)
	v.SetDefault(KeyImportRespectDisablePlugins, true)
	v.SetDefault(KeyImportFallbackToCurrentUser, false)
	v.SetDefault(KeyImportBypassCustomSync, false)
	v.SetDefault(KeyImportBypassCustomAsync, false)
	v.SetDefault(KeyImportSuppressCallbackRegistrationExpanderJob, false)
	v.SetDefault(KeyImportSuppressDuplicateDetection, false)
	v.SetDefault(KeyImportTag, "")

	v.SetDefault(KeyTelemetryServiceName, "dvmigrate")
}

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringMapString returns key as a map, used for the user-mappings
// table (source systemuser/team id to target id).
func GetStringMapString(key string) map[string]string {
	if v == nil {
		return nil
	}
	return v.GetStringMapString(key)
}
