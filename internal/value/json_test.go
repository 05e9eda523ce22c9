package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), `null`},
		{"string", String("10.0.0.0/16"), `"10.0.0.0/16"`},
		{"integer", Integer(443), `443`},
		{"boolean", Boolean(true), `true`},
		{"list", List([]Value{Integer(80), Integer(443)}), `[80,443]`},
		{"map", Map(map[string]Value{"port": Integer(22)}), `{"port":22}`},
		{"reference", Ref(Reference{Binding: "main_vpc", Attribute: "id"}), `{"$ref":"main_vpc.id"}`},
		{"nested", Map(map[string]Value{"cidrs": List([]Value{String("10.0.1.0/24")})}), `{"cidrs":["10.0.1.0/24"]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.v)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))

			var back Value
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, Equal(tc.v, back), "round-trip changed value: %s vs %s", tc.v, back)
		})
	}
}

func TestJSONRejectsFloat(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`1.5`), &v)
	require.Error(t, err)
}
