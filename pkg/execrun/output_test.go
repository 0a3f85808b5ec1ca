package execrun

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOutput_JSON(t *testing.T) {
	tests := []struct {
		name    string
		output  Output
		encoded string
	}{
		{name: "text", output: Output("3\n"), encoded: `"3\n"`},
		{name: "empty", output: nil, encoded: `""`},
		{name: "invalid utf-8", output: Output("\xff\xfe"), encoded: `{"encoding":"base64","data":"//4="}`},
		{name: "text with a stray byte", output: Output("ok\x80"), encoded: `{"encoding":"base64","data":"b2uA"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.output)
			require.NoError(t, err)
			assert.JSONEq(t, tt.encoded, string(data))

			var decoded Output
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, []byte(tt.output), []byte(decoded))
		})
	}
}

func TestOutput_DistinctBytesStayDistinct(t *testing.T) {
	results := []Result{
		{Stdout: Output("\xff\xfe")},
		{Stdout: Output("\xfe\xff")},
	}

	data, err := json.Marshal(results)
	require.NoError(t, err)

	var decoded []Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, []byte("\xff\xfe"), []byte(decoded[0].Stdout))
	assert.Equal(t, []byte("\xfe\xff"), []byte(decoded[1].Stdout))
	assert.Empty(t, decoded[0].Stderr)
}

func TestOutput_YAML(t *testing.T) {
	in := Result{ExitCode: 1, Stdout: Output("line\n"), Stderr: Output("\xc3\x28")}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "encoding: base64")

	var out Result
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, 1, out.ExitCode)
	assert.Equal(t, []byte("line\n"), []byte(out.Stdout))
	assert.Equal(t, []byte("\xc3\x28"), []byte(out.Stderr))
}

func TestOutput_UnsupportedEncoding(t *testing.T) {
	var o Output

	err := json.Unmarshal([]byte(`{"encoding":"hex","data":"ff"}`), &o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output encoding")
}
