package config

// Merge takes a struct indicating which configuration options have been provided on the command
// line, as well as a configuration struct parsed from the command line which ALSO includes defaults
// that the user didn't specify. For example the default port is 8080 and if you don't specify
// that on the command line - it gets defaulted into the parsed configuration struct. So:
//
//  1. User provided a value: overwrite current config using the user's value
//  2. User did not provide a value, current config is unspecified: use the default in the parsed config
//  3. User did not provide a value, current config is specified: leave the current config untouched
func Merge(fromCmdline FromCmdLine, cfg Configuration) {
	if fromCmdline.LogLevel || config.LogLevel == "" {
		config.LogLevel = cfg.LogLevel
	}
	if fromCmdline.LogFile || config.LogFile == "" {
		config.LogFile = cfg.LogFile
	}
	if fromCmdline.ConfigFile || config.ConfigFile == "" {
		config.ConfigFile = cfg.ConfigFile
	}
	if fromCmdline.CachePath || config.CachePath == "" {
		config.CachePath = cfg.CachePath
	}
	if fromCmdline.StoreType || config.StoreType == "" {
		config.StoreType = cfg.StoreType
	}
	if fromCmdline.ManifestFile || config.ManifestFile == "" {
		config.ManifestFile = cfg.ManifestFile
	}
	if fromCmdline.WatchManifest || !config.WatchManifest {
		config.WatchManifest = cfg.WatchManifest
	}
	if fromCmdline.Port || config.Port == 0 {
		config.Port = cfg.Port
	}
	if fromCmdline.Health || config.Health == 0 {
		config.Health = cfg.Health
	}
	if fromCmdline.Metrics || config.Metrics == 0 {
		config.Metrics = cfg.Metrics
	}
	if fromCmdline.FetchTimeout || config.FetchTimeout == 0 {
		config.FetchTimeout = cfg.FetchTimeout
	}
	if fromCmdline.SyncConcurrency || config.SyncConcurrency == 0 {
		config.SyncConcurrency = cfg.SyncConcurrency
	}
	if fromCmdline.SyncRateLimit || config.SyncRateLimit == 0 {
		config.SyncRateLimit = cfg.SyncRateLimit
	}
	if fromCmdline.HoldNewVersions || !config.HoldNewVersions {
		config.HoldNewVersions = cfg.HoldNewVersions
	}
	if fromCmdline.Origin || config.Origin.Url == "" {
		config.Origin.Url = cfg.Origin.Url
	}
	if fromCmdline.ListConfig || config.ListConfig == (ListConfig{}) {
		config.ListConfig = cfg.ListConfig
	}
}
