package config

const (
	// AllSetsToken selects every released set when listed in pipeline.set_ids.
	AllSetsToken = "all"

	defaultWorkDir              = "~/.local/share/setgen/work"
	defaultOutputDir            = "~/.local/share/setgen/output"
	defaultStateDir             = "~/.local/share/setgen/state"
	defaultLogDir               = "~/.local/share/setgen/logs"
	defaultMailDir              = "~/.local/share/setgen/mail"
	defaultLanguage             = "English"
	defaultRetryAttempts        = 2
	defaultRetryBackoff         = 0
	defaultTaskTimeout          = 3600
	defaultInterruptGrace       = 30
	defaultMailDailyQuota       = 50
	defaultNotifyRequestTimeout = 10
	defaultScheduleSpec         = "@every 1m"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultReprocessAllOnError  = true
	defaultCleanupOrphans       = true
	defaultNotifyTaskFailures   = true
	defaultNotifySanityCheck    = true
	defaultNotifyRunSummary     = false
	defaultNotifyRecovery       = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			MailDir:   defaultMailDir,
		},
		Pipeline: Pipeline{
			SetIDs:              []string{AllSetsToken},
			Languages:           []string{defaultLanguage},
			ScratchLanguage:     defaultLanguage,
			ReprocessAllOnError: defaultReprocessAllOnError,
			TaskTimeout:         defaultTaskTimeout,
			InterruptGrace:      defaultInterruptGrace,
			CleanupOrphans:      defaultCleanupOrphans,
		},
		Outputs: map[string][]string{
			defaultLanguage: {"db"},
		},
		Retry: Retry{
			Default: RetryPolicy{Attempts: defaultRetryAttempts, Backoff: defaultRetryBackoff},
			Kinds:   map[string]RetryPolicy{},
		},
		Tools: Tools{
			Authoring: Tool{
				Args: []string{"--project", "{project}", "--set", "{set}", "--lang", "{lang}", "--skip", "{skip_file}", "--output", "{output}"},
			},
			Image: Tool{
				Command: "setgen-image",
				Args:    []string{"--filter", "{filter}", "--input", "{input}", "--output", "{output}", "--skip", "{skip_file}"},
			},
		},
		Notifications: Notifications{
			MailDailyQuota: defaultMailDailyQuota,
			RequestTimeout: defaultNotifyRequestTimeout,
			TaskFailures:   defaultNotifyTaskFailures,
			SanityCheck:    defaultNotifySanityCheck,
			RunSummary:     defaultNotifyRunSummary,
			Recovery:       defaultNotifyRecovery,
		},
		Schedule: Schedule{Spec: defaultScheduleSpec},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
