package config

import (
	"github.com/go-viper/mapstructure/v2"
)

// DecodeHook returns the mapstructure hook used when unmarshaling the
// configuration. It enables the TextUnmarshaler implementations on ByteSize
// and Duration so human-readable values work from YAML and environment
// variables, while preserving Viper's standard duration and slice handling.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
