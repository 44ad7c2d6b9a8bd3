package marginalia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMetaLine(t *testing.T) {
	assert.True(t, isMetaLine("# meta: systems=db"))
	assert.True(t, isMetaLine("    # meta: systems=db"))
	assert.True(t, isMetaLine("#meta: systems=db"))
	assert.True(t, isMetaLine("# meta:"))

	assert.False(t, isMetaLine("# Meta: systems=db")) // case-sensitive
	assert.False(t, isMetaLine("# metadata: x=y"))
	assert.False(t, isMetaLine("# doc: free text"))
	assert.False(t, isMetaLine("def foo():"))
}

func TestParseMetaLine_Tokens(t *testing.T) {
	p, err := parseMetaLine("# meta: @helper #h-1 systems=DB,api roles=writer custom_key=a,b")
	require.NoError(t, err)

	assert.Equal(t, "helper", p.anchor)
	assert.Equal(t, "h-1", p.id)
	assert.Equal(t, []string{"DB", "api"}, p.reserved["systems"])
	assert.Equal(t, []string{"writer"}, p.reserved["roles"])
	assert.Equal(t, []string{"a", "b"}, p.custom["custom_key"])
}

func TestParseMetaLine_ModulesIsSystemsAlias(t *testing.T) {
	p, err := parseMetaLine("# meta: modules=db,conversation")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "conversation"}, p.reserved["systems"])
	assert.NotContains(t, p.custom, "modules")
}

func TestParseMetaLine_LastWithinLineWins(t *testing.T) {
	p, err := parseMetaLine("# meta: systems=a systems=b threads=x extra=1 extra=2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, p.reserved["systems"])
	assert.Equal(t, []string{"2"}, p.custom["extra"])
}

func TestParseMetaLine_EmptyBody(t *testing.T) {
	p, err := parseMetaLine("# meta:")
	require.NoError(t, err)
	assert.Empty(t, p.anchor)
	assert.Empty(t, p.id)
	assert.Empty(t, p.reserved)
	assert.Empty(t, p.custom)
}

func TestParseMetaLine_EmptyValueList(t *testing.T) {
	p, err := parseMetaLine("# meta: callers=")
	require.NoError(t, err)
	vals, ok := p.reserved["callers"]
	require.True(t, ok)
	assert.Empty(t, vals)
}

func TestParseMetaLine_GrammarErrors(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		token string
	}{
		{"bad anchor characters", "# meta: @bad.anchor", "@bad.anchor"},
		{"empty anchor", "# meta: @", "@"},
		{"empty id", "# meta: #", "#"},
		{"missing equals", "# meta: loose", "loose"},
		{"two equals", "# meta: k=v=w", "k=v=w"},
		{"bad key", "# meta: bad.key=v", "bad.key=v"},
		{"empty value in list", "# meta: k=a,,b", "k=a,,b"},
		{"trailing comma", "# meta: k=a,", "k=a,"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseMetaLine(tc.line)
			require.Error(t, err)
			var ge *GrammarError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tc.token, ge.Token)
		})
	}
}

func TestParseMetaLine_ReservedKeySet(t *testing.T) {
	p, err := parseMetaLine("# meta: systems=a roles=b threads=c callers=d flags=e assign_type=f other=g")
	require.NoError(t, err)

	for _, k := range []string{"systems", "roles", "threads", "callers", "flags", "assign_type"} {
		assert.Contains(t, p.reserved, k)
	}
	assert.Equal(t, map[string][]string{"other": {"g"}}, p.custom)
}
