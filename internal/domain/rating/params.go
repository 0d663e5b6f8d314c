package rating

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/rotisserie/eris"
)

// Params carries algorithm configuration as loosely typed key/value pairs,
// as it arrives from YAML files or environment variables.
type Params map[string]any

// Decode copies p into out, a pointer to a struct whose fields are tagged
// with `param:"name"`. Fields already set in out act as defaults. Strings are
// converted to the field type, comma separated strings become slices and
// unknown keys are rejected.
func (p Params) Decode(out any) error {
	if len(p) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "param",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return eris.Wrap(err, "build params decoder")
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return eris.Wrapf(ErrInvalidConfig, "%v", err)
	}
	return nil
}
