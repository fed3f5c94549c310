package utils

import "time"

const (
	DefaultMonitorSeconds = 10
	DefaultChartsDir      = "./charts"
	DefaultChartFormat    = "png"
	DefaultBaseURL        = "http://localhost:6333"
	DefaultCollection     = "payload"
	DefaultContainerName  = "my_qdrant_container"
	DefaultImage          = "qdrant/qdrant"
	DefaultPort           = 6333
	DefaultStorageDir     = "qdrant_storage"
	DefaultExportFormat   = "jsonl"
	DefaultLogLevel       = "info"

	DefaultSettleDelay  = 10 * time.Second
	DefaultInterval     = time.Second
	DefaultPollInterval = 30 * time.Second

	ExportNone = "none"

	ProbeHost = "host"
	ProbeProc = "proc"
)
