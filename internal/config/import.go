package config

import (
	"time"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/migrate"
	"github.com/dvmigrate/core/internal/record"
)

// ModeFromString parses the import.mode config value. An unrecognised
// value falls back to ModeUpsert, matching the default registered in
// registerDefaults.
func ModeFromString(s string) record.Mode {
	switch s {
	case "create":
		return record.ModeCreate
	case "update":
		return record.ModeUpdate
	default:
		return record.ModeUpsert
	}
}

// ImportOptions builds migrate.Options from the loaded configuration,
// including the bypass flags and user-id mapping table. A caller that
// needs to override any of these still sets them on the returned value
// before calling Importer.Import.
func ImportOptions() migrate.Options {
	return migrate.Options{
		Mode:                         ModeFromString(GetString(KeyImportMode)),
		BatchSize:                    GetInt(KeyImportBatchSize),
		UseBulkApis:                  GetBool(KeyImportUseBulkApis),
		MaxParallelEntities:          GetInt(KeyImportMaxParallelEntities),
		ContinueOnError:              GetBool(KeyImportContinueOnError),
		SkipMissingColumns:           GetBool(KeyImportSkipMissingColumns),
		StripOwnerFields:             GetBool(KeyImportStripOwnerFields),
		RespectDisablePluginsSetting: GetBool(KeyImportRespectDisablePlugins),
		CurrentUserID:                GetString(KeyImportCurrentUserID),
		FallbackToCurrentUser:        GetBool(KeyImportFallbackToCurrentUser),
		UserMappings:                 GetStringMapString(KeyImportUserMappings),
		Bypass:                       BypassOptions(),
	}
}

// BypassOptions builds client.BypassOptions from the loaded
// configuration's bypass/suppress/tag keys.
func BypassOptions() client.BypassOptions {
	var flag client.BypassFlag
	if GetBool(KeyImportBypassCustomSync) {
		flag |= client.BypassSync
	}
	if GetBool(KeyImportBypassCustomAsync) {
		flag |= client.BypassAsync
	}
	return client.BypassOptions{
		CustomLogic:                flag,
		SuppressPowerAutomateFlows: GetBool(KeyImportSuppressCallbackRegistrationExpanderJob),
		SuppressDuplicateDetection: GetBool(KeyImportSuppressDuplicateDetection),
		Tag:                        GetString(KeyImportTag),
	}
}

// PoolAcquireTimeout returns the configured pool acquire timeout.
func PoolAcquireTimeout() time.Duration {
	return GetDuration(KeyPoolAcquireTimeout)
}

// PoolMaxSize returns the configured pool max size.
func PoolMaxSize() int {
	return GetInt(KeyPoolMaxSize)
}
