package escalation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testItem struct {
	id    string
	value int
	boost int
}

func TestLoopResolvesOnCheapPassWhenAlreadyValid(t *testing.T) {
	items := []testItem{{id: "a", value: 10}}
	caps := Caps{MaxAttempts: 3}

	results, err := Loop(items, caps,
		func(item testItem, attempt int) (testItem, error) { return item, nil },
		func(item testItem, attempt int) (testItem, error) { t.Fatal("boost should not run"); return item, nil },
		func(item testItem) (Verdict, string) {
			if item.value >= 10 {
				return VerdictPassed, ""
			}
			return VerdictRetry, "below threshold"
		},
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, StatusFound, results[0].Status)
	require.Equal(t, 1, results[0].Attempts)
}

func TestLoopEscalatesUntilValidWithinCap(t *testing.T) {
	items := []testItem{{id: "a", value: 1}}
	caps := Caps{MaxAttempts: 3}

	results, err := Loop(items, caps,
		func(item testItem, attempt int) (testItem, error) { return item, nil },
		func(item testItem, attempt int) (testItem, error) {
			item.value += 5
			return item, nil
		},
		func(item testItem) (Verdict, string) {
			if item.value >= 10 {
				return VerdictPassed, ""
			}
			return VerdictRetry, "below threshold"
		},
	)
	require.NoError(t, err)
	require.Equal(t, StatusFound, results[0].Status)
	require.Equal(t, 3, results[0].Attempts)
}

func TestLoopMarksUnresolvedWhenCapExhausted(t *testing.T) {
	items := []testItem{{id: "a", value: 1}}
	caps := Caps{MaxAttempts: 2}

	results, err := Loop(items, caps,
		func(item testItem, attempt int) (testItem, error) { return item, nil },
		func(item testItem, attempt int) (testItem, error) { return item, nil },
		func(item testItem) (Verdict, string) { return VerdictRetry, "never passes" },
	)
	require.NoError(t, err)
	require.Equal(t, StatusUnresolved, results[0].Status)
	require.Equal(t, "never passes", results[0].Reason)
}

func TestLoopMarksResolvedNotFoundWhenModuleConcludesAbsence(t *testing.T) {
	items := []testItem{{id: "a", value: 1}}
	caps := Caps{MaxAttempts: 3}

	results, err := Loop(items, caps,
		func(item testItem, attempt int) (testItem, error) { return item, nil },
		func(item testItem, attempt int) (testItem, error) {
			item.boost++
			return item, nil
		},
		func(item testItem) (Verdict, string) {
			if item.boost >= 1 {
				return VerdictNotFound, "confirmed absent upstream"
			}
			return VerdictRetry, "checking"
		},
	)
	require.NoError(t, err)
	require.Equal(t, StatusResolvedNotFound, results[0].Status)
	require.Equal(t, "confirmed absent upstream", results[0].Reason)
	require.Equal(t, 2, results[0].Attempts)
}

func TestCapsValidateRejectsNonPositiveMaxAttempts(t *testing.T) {
	require.Error(t, Caps{MaxAttempts: 0}.Validate())
	require.NoError(t, Caps{MaxAttempts: 1}.Validate())
}
