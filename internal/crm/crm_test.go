package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecurStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RecurStatus
		want     bool
	}{
		{RecurPending, RecurActive, true},
		{RecurPending, RecurCancelled, true},
		{RecurPending, RecurFailed, false},
		{RecurActive, RecurCancelled, true},
		{RecurActive, RecurFailed, true},
		{RecurActive, RecurPending, false},
		{RecurFailed, RecurActive, true},
		{RecurFailed, RecurCancelled, true},
		{RecurFailed, RecurPending, false},
		{RecurActive, RecurActive, false},
		{RecurCancelled, RecurActive, false},
		{RecurCancelled, RecurPending, false},
		{RecurCancelled, RecurFailed, false},
		{RecurPending, "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
