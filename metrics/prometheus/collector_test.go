package prometheus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorExportsSnapshot(t *testing.T) {
	snapshot := map[string]uint64{
		"login_success": 7,
		"quota_denied":  2,
	}
	c := NewCollector("guardian", func() map[string]uint64 { return snapshot })

	expected := `
# HELP guardian_login_success_total Engine counter login_success.
# TYPE guardian_login_success_total counter
guardian_login_success_total 7
# HELP guardian_quota_denied_total Engine counter quota_denied.
# TYPE guardian_quota_denied_total counter
guardian_quota_denied_total 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestCollectorTracksLiveValues(t *testing.T) {
	snapshot := map[string]uint64{"login_success": 0}
	c := NewCollector("guardian", func() map[string]uint64 { return snapshot })

	assert.Equal(t, float64(0), testutil.ToFloat64(c))
	snapshot["login_success"] = 3
	assert.Equal(t, float64(3), testutil.ToFloat64(c))
}
