package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateOverallStatus(t *testing.T) {
	ok := Succeeded("a", "")
	bad := Failed("b", CauseTimeout, "")
	skip := SkippedRegionAbsent("c", "")

	cases := []struct {
		name string
		in   []Outcome
		want Overall
	}{
		{"empty", nil, Empty},
		{"all success", []Outcome{ok, ok}, AllSuccess},
		{"partial", []Outcome{ok, bad}, Partial},
		{"all failed", []Outcome{bad, bad}, AllFailed},
		{"skipped counts as not success", []Outcome{skip, skip}, AllFailed},
		{"skipped with success", []Outcome{skip, ok}, Partial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := Aggregate(tc.in)
			assert.Equal(t, tc.want, rep.Status)
			assert.Len(t, rep.Outcomes, len(tc.in))
		})
	}
}

func TestAggregatePreservesOrderAndDoesNotAlias(t *testing.T) {
	in := []Outcome{Succeeded("server-2", ""), Failed("server-1", CauseTransport, "")}
	rep := Aggregate(in)
	require.Equal(t, "server-2", rep.Outcomes[0].Member)
	require.Equal(t, "server-1", rep.Outcomes[1].Member)

	rep.Outcomes[0].Member = "changed"
	assert.Equal(t, "server-2", in[0].Member)
	assert.Equal(t, rep.Status, Aggregate(in).Status)
}

func TestRender(t *testing.T) {
	rep := Aggregate([]Outcome{
		Succeeded("server-1", `Region "/regionA" altered on "server-1"`),
		Failed("server-2", CauseTimeout, ""),
	})
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep))
	out := buf.String()
	assert.Contains(t, out, "Member")
	assert.Contains(t, out, `Region "/regionA" altered on "server-1"`)
	assert.Contains(t, out, "FAILURE: timeout")
	assert.Contains(t, out, "PARTIAL (1/2 succeeded)")

	buf.Reset()
	require.NoError(t, Render(&buf, Aggregate(nil)))
	assert.Contains(t, buf.String(), "No members found")
}
