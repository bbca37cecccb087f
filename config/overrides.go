package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Keys a user may override with a flag or a PITCHBENCH_* environment variable.
const (
	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"
	KeyWorkers   = "workers"
	KeyTolerance = "tolerance"
	KeyProgress  = "progress"
	KeyAverage   = "average-row"
)

// NewViper returns a viper instance reading PITCHBENCH_* variables, with
// dashes in keys mapped to underscores (log-level -> PITCHBENCH_LOG_LEVEL).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("pitchbench")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set on v over the file configuration.
func (r *Root) ApplyOverrides(v *viper.Viper) {
	if v.IsSet(KeyLogLevel) {
		r.Pipeline.LogLvl = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyLogFormat) {
		r.Pipeline.LogFormat = v.GetString(KeyLogFormat)
	}
	if v.IsSet(KeyWorkers) {
		r.Evaluation.Workers = v.GetInt(KeyWorkers)
	}
	if v.IsSet(KeyTolerance) {
		r.Evaluation.ToleranceCents = v.GetFloat64(KeyTolerance)
	}
	if v.IsSet(KeyProgress) {
		r.Evaluation.Progress = v.GetBool(KeyProgress)
	}
	if v.IsSet(KeyAverage) {
		r.Evaluation.AverageRow = v.GetBool(KeyAverage)
	}
}
