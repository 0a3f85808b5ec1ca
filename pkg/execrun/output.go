package execrun

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// EncodingBase64 marks captured output that is not valid UTF-8.
const EncodingBase64 = "base64"

// Output is the exact byte stream a program wrote. Valid UTF-8 encodes as a
// plain string; anything else encodes as {encoding: base64, data: ...} so
// report files keep every byte.
type Output []byte

type encodedOutput struct {
	Encoding string `json:"encoding" yaml:"encoding"`
	Data     string `json:"data" yaml:"data"`
}

func (o Output) encoded() any {
	if utf8.Valid(o) {
		return string(o)
	}

	return encodedOutput{Encoding: EncodingBase64, Data: base64.StdEncoding.EncodeToString(o)}
}

func (o *Output) decode(enc encodedOutput) error {
	if enc.Encoding != EncodingBase64 {
		return fmt.Errorf("unsupported output encoding %q", enc.Encoding)
	}

	data, err := base64.StdEncoding.DecodeString(enc.Data)
	if err != nil {
		return fmt.Errorf("decoding output: %w", err)
	}

	*o = data

	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.encoded())
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Output) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*o = Output(s)

		return nil
	}

	var enc encodedOutput
	if err := json.Unmarshal(data, &enc); err != nil {
		return fmt.Errorf("parsing output: %w", err)
	}

	return o.decode(enc)
}

// MarshalYAML implements yaml.Marshaler.
func (o Output) MarshalYAML() (any, error) {
	return o.encoded(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Output) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*o = Output(value.Value)

		return nil
	}

	var enc encodedOutput
	if err := value.Decode(&enc); err != nil {
		return fmt.Errorf("parsing output: %w", err)
	}

	return o.decode(enc)
}
