package config

const (
	defaultDataDir                   = "~/.local/share/orderflow"
	defaultLogDir                    = "~/.local/share/orderflow/logs"
	defaultAPIBind                   = "127.0.0.1:7488"
	defaultStoreDriver               = "sqlite"
	defaultSLAMultiplier             = 4
	defaultSLAExtensionMultiplier    = 2
	defaultWarningLeadMinutes        = 16
	defaultWarningFloorMinutes       = 10
	defaultOpsRecipient              = "ops"
	defaultQualityThreshold          = 5.0
	defaultSettleDelaySeconds        = 60
	defaultPWERThreshold             = 0.2
	defaultRushTAT                   = 12
	defaultMaxDeliverables           = 5
	defaultCancelProgressThreshold   = 59
	defaultReaperIntervalSeconds     = 300
	defaultEscalationIntervalSeconds = 3600
	defaultOutboxIntervalSeconds     = 15
	defaultOutboxMaxAttempts         = 5
	defaultOutboxBatchSize           = 50
	defaultNotifyRequestTimeout      = 10
	defaultSupportRecipient          = "support"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		SLA: SLA{
			Multiplier:          defaultSLAMultiplier,
			ExtensionMultiplier: defaultSLAExtensionMultiplier,
			Tiers: []SLATier{
				{MaxDurationSeconds: 1800, Multiplier: 6, GraceSeconds: 7200},
				{MaxDurationSeconds: 10800, Multiplier: 5, GraceSeconds: 7200},
			},
			WarningLeadMinutes:  defaultWarningLeadMinutes,
			WarningFloorMinutes: defaultWarningFloorMinutes,
			Stages:              []string{"QC"},
			ExemptOrgs:          []string{"acr", "remotelegal"},
		},
		Escalation: Escalation{
			ThresholdsHours: []int{12, 16, 20, 24},
			Statuses:        []string{"TRANSCRIBED", "FORMATTED"},
			OpsRecipient:    defaultOpsRecipient,
		},
		Quality: Quality{
			Threshold:         defaultQualityThreshold,
			ReportOption:      "AUTO_DIFF_BELOW_THRESHOLD",
			ApprovalRecipient: defaultOpsRecipient,
		},
		WorkQueue: WorkQueue{
			SettleDelaySeconds: defaultSettleDelaySeconds,
			PWERThreshold:      defaultPWERThreshold,
			RushTAT:            defaultRushTAT,
		},
		Deliverables: Deliverables{
			AllowedFormats: []string{"docx"},
			MaxFiles:       defaultMaxDeliverables,
		},
		Workflow: Workflow{
			CancelProgressThreshold:   defaultCancelProgressThreshold,
			ReaperIntervalSeconds:     defaultReaperIntervalSeconds,
			EscalationIntervalSeconds: defaultEscalationIntervalSeconds,
			OutboxIntervalSeconds:     defaultOutboxIntervalSeconds,
			OutboxMaxAttempts:         defaultOutboxMaxAttempts,
			OutboxBatchSize:           defaultOutboxBatchSize,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			SupportRecipient: defaultSupportRecipient,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
