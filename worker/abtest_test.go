package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachly/models"
)

func makeContacts(n int) []models.Contact {
	contacts := make([]models.Contact, n)
	for i := range contacts {
		contacts[i].ID = uint(i + 1)
	}
	return contacts
}

func TestSplitAudiencePartitionInvariant(t *testing.T) {
	cases := []struct {
		name     string
		n        int
		testPct  int
		aPct     int
		wantA    int
		wantB    int
		wantRest int
	}{
		{"reference scenario", 100, 20, 50, 10, 10, 80},
		{"odd audience", 33, 20, 50, 3, 3, 27},
		{"uneven variants", 100, 30, 70, 21, 9, 70},
		{"tiny audience", 3, 20, 50, 0, 0, 3},
		{"full test", 10, 100, 50, 5, 5, 0},
		{"single contact", 1, 50, 50, 0, 0, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			contacts := makeContacts(tc.n)
			cfg := &models.AbTestConfig{
				TestSizePercentage: tc.testPct,
				VariantASize:       tc.aPct,
				VariantBSize:       100 - tc.aPct,
			}

			groupA, groupB, remaining := SplitAudience(contacts, cfg)

			assert.Len(t, groupA, tc.wantA)
			assert.Len(t, groupB, tc.wantB)
			assert.Len(t, remaining, tc.wantRest)
			assert.Equal(t, tc.n, len(groupA)+len(groupB)+len(remaining))

			// The three slices must be pairwise disjoint.
			seen := make(map[uint]int)
			for _, c := range groupA {
				seen[c.ID]++
			}
			for _, c := range groupB {
				seen[c.ID]++
			}
			for _, c := range remaining {
				seen[c.ID]++
			}
			require.Len(t, seen, tc.n)
			for id, count := range seen {
				assert.Equalf(t, 1, count, "contact %d appears %d times", id, count)
			}
		})
	}
}

func TestSplitAudienceDoesNotMutateInput(t *testing.T) {
	contacts := makeContacts(50)
	original := make([]models.Contact, len(contacts))
	copy(original, contacts)

	SplitAudience(contacts, &models.AbTestConfig{TestSizePercentage: 20, VariantASize: 50, VariantBSize: 50})

	assert.Equal(t, original, contacts)
}

func TestPickWinnerSMSAlwaysVariantA(t *testing.T) {
	db := newTestDB(t)
	bw := NewBroadcastWorker(db, newTestDispatcher(db, &fakeEmailTransport{}, &fakeSMSTransport{}), testLogger())

	// Engagement data heavily favors B; SMS has no open signal, so the
	// selection must still be A.
	b := &models.Broadcast{
		Channel: models.ChannelSMS,
		AbTest:  &models.AbTestConfig{TestSizePercentage: 20, VariantASize: 50, VariantBSize: 50},
		Versions: []models.ContentVersion{
			{Variant: models.VariantA, SentCount: 100, OpenCount: 0},
			{Variant: models.VariantB, SentCount: 100, OpenCount: 100},
		},
	}
	assert.Equal(t, models.VariantA, bw.pickWinner(b))
}

func TestPickWinnerEmail(t *testing.T) {
	db := newTestDB(t)
	bw := NewBroadcastWorker(db, newTestDispatcher(db, &fakeEmailTransport{}, &fakeSMSTransport{}), testLogger())

	cases := []struct {
		name   string
		aSent  int
		aOpens int
		bSent  int
		bOpens int
		want   string
	}{
		{"B strictly better", 10, 2, 10, 5, models.VariantB},
		{"A strictly better", 10, 5, 10, 2, models.VariantA},
		{"tie defaults to A", 10, 3, 10, 3, models.VariantA},
		{"no data defaults to A", 0, 0, 0, 0, models.VariantA},
		{"missing B data defaults to A", 10, 1, 0, 0, models.VariantA},
		{"missing A data defaults to A", 0, 0, 10, 9, models.VariantA},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &models.Broadcast{
				Channel: models.ChannelEmail,
				Versions: []models.ContentVersion{
					{Variant: models.VariantA, SentCount: tc.aSent, OpenCount: tc.aOpens},
					{Variant: models.VariantB, SentCount: tc.bSent, OpenCount: tc.bOpens},
				},
			}
			assert.Equal(t, tc.want, bw.pickWinner(b))
		})
	}
}

func TestOpenRateScorer(t *testing.T) {
	scorer := OpenRateScorer{}

	score, ok := scorer.Score(nil, &models.ContentVersion{SentCount: 10, OpenCount: 4})
	assert.True(t, ok)
	assert.InDelta(t, 0.4, score, 0.0001)

	_, ok = scorer.Score(nil, &models.ContentVersion{SentCount: 0})
	assert.False(t, ok)

	_, ok = scorer.Score(nil, nil)
	assert.False(t, ok)
}
