package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		valueFlags []string
		boolFlags  []string
		want       []string
	}{
		{
			name:       "separate value",
			args:       []string{"-c", "conf.json", "-a", "localhost"},
			valueFlags: []string{"-c"},
			want:       []string{"-c", "conf.json"},
		},
		{
			name:       "joined value",
			args:       []string{"--config=alt.json", "-a", "localhost"},
			valueFlags: []string{"--config"},
			want:       []string{"--config=alt.json"},
		},
		{
			name:       "order preserved",
			args:       []string{"-d", "vault.db", "-x", "1", "-l", "debug"},
			valueFlags: []string{"-d", "-l"},
			want:       []string{"-d", "vault.db", "-l", "debug"},
		},
		{
			name:       "unknown flags and positionals ignored",
			args:       []string{"-x", "1", "--y=2", "positional"},
			valueFlags: []string{"-c"},
			want:       []string{},
		},
		{
			name:       "value flag at the end",
			args:       []string{"-c"},
			valueFlags: []string{"-c"},
			want:       []string{"-c"},
		},
		{
			name:       "value flag followed by a flag",
			args:       []string{"-c", "-other"},
			valueFlags: []string{"-c"},
			want:       []string{"-c"},
		},
		{
			name:       "bool flag does not swallow positional",
			args:       []string{"-json", "export", "-l", "warn"},
			valueFlags: []string{"-l"},
			boolFlags:  []string{"-json"},
			want:       []string{"-json", "-l", "warn"},
		},
		{
			name:       "bool flag with explicit value",
			args:       []string{"-json=false"},
			boolFlags:  []string{"-json"},
			want:       []string{"-json=false"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.valueFlags, tt.boolFlags...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "a.json", ConfigPath([]string{"-c", "a.json", "-d", "x.db"}))
	assert.Equal(t, "b.json", ConfigPath([]string{"export", "-config=b.json"}))
	assert.Equal(t, "", ConfigPath([]string{"-d", "x.db"}))
	assert.Equal(t, "", ConfigPath(nil))
}

func TestRemoveArgs(t *testing.T) {
	args := []string{"-d", "vault.db", "export", "-o", "out.zip", "-json", "id-1", "-l=debug"}

	got := RemoveArgs(args, []string{"-d", "-l"}, "-json")

	assert.Equal(t, []string{"export", "-o", "out.zip", "id-1"}, got)
	assert.Equal(t, []string{"-d", "vault.db", "-json", "-l=debug"}, FilterArgs(args, []string{"-d", "-l"}, "-json"))
}
