package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentMemory_ValidForEveryKind(t *testing.T) {
	for _, kind := range []AgentKind{KindCompetitiveIntel, KindMarketing, KindCompliance, KindOperations} {
		m := NewAgentMemory(kind, "brand-1", string(kind))
		assert.NoError(t, m.Validate(), kind)
	}
}

func TestAgentMemory_ValidateTaggedVariant(t *testing.T) {
	m := NewAgentMemory(KindMarketing, "brand-1", "marketing")

	t.Run("second payload", func(t *testing.T) {
		bad := m.Clone()
		bad.Intel = &IntelMemory{}
		assert.ErrorIs(t, bad.Validate(), ErrValidation)
	})

	t.Run("payload does not match kind", func(t *testing.T) {
		bad := m.Clone()
		bad.Marketing = nil
		bad.Intel = &IntelMemory{}
		assert.ErrorIs(t, bad.Validate(), ErrValidation)
	})

	t.Run("unknown kind", func(t *testing.T) {
		bad := m.Clone()
		bad.Kind = "finance"
		assert.ErrorIs(t, bad.Validate(), ErrValidation)
	})

	t.Run("duplicate campaign", func(t *testing.T) {
		bad := m.Clone()
		bad.Marketing.Campaigns = []Campaign{
			{ID: "c1", Status: CampaignDraft},
			{ID: "c1", Status: CampaignLive},
		}
		assert.ErrorIs(t, bad.Validate(), ErrValidation)
	})
}

func TestDecodeAgentMemory_ExtensionsButNoPassthrough(t *testing.T) {
	m := NewAgentMemory(KindCompetitiveIntel, "brand-1", "intel")
	m.Extensions = map[string]string{"region": "west"}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	got, err := DecodeAgentMemory(data)
	require.NoError(t, err)
	assert.Equal(t, "west", got.Extensions["region"])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["region"] = "west"
	data, err = json.Marshal(raw)
	require.NoError(t, err)

	_, err = DecodeAgentMemory(data)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAgentMemory_CloneIsDeep(t *testing.T) {
	m := NewAgentMemory(KindCompetitiveIntel, "brand-1", "intel")
	m.Intel.Watchlist = []Competitor{{ID: "c1", Name: "Rival"}}

	cp := m.Clone()
	cp.Intel.Watchlist[0].Name = "Changed"

	assert.Equal(t, "Rival", m.Intel.Watchlist[0].Name)
}

func TestIntelMemory_AddSnapshotKeepsBoundedHistory(t *testing.T) {
	var p IntelMemory
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxSnapshotsPerCompetitor+3; i++ {
		p.AddSnapshot(MenuSnapshot{CompetitorID: "c1", CapturedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	p.AddSnapshot(MenuSnapshot{CompetitorID: "c2", CapturedAt: base})

	count := 0
	for _, s := range p.MenuSnapshots {
		if s.CompetitorID == "c1" {
			count++
		}
	}
	assert.Equal(t, MaxSnapshotsPerCompetitor, count)

	latest, ok := p.LatestSnapshot("c1")
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Duration(MaxSnapshotsPerCompetitor+2)*time.Hour), latest.CapturedAt)

	_, ok = p.LatestSnapshot("missing")
	assert.False(t, ok)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Zero(t, Severity("urgent").Rank())
}
