package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, text string, keywords []string) (*Classification, error) {
	args := m.Called(ctx, text, keywords)
	c, _ := args.Get(0).(*Classification)
	return c, args.Error(1)
}

func (m *mockClassifier) Name() string { return "mock" }

func TestClassification_IsValidLead(t *testing.T) {
	tests := []struct {
		name string
		c    *Classification
		want bool
	}{
		{"nil", nil, false},
		{"valid", &Classification{IsLead: true, Type: TypeHiring, Confidence: 0.9}, true},
		{"not a lead", &Classification{IsLead: false, Type: TypeHiring, Confidence: 0.9}, false},
		{"at threshold", &Classification{IsLead: true, Type: TypeHiring, Confidence: 0.5}, false},
		{"unknown type", &Classification{IsLead: true, Type: TypeUnknown, Confidence: 0.9}, false},
		{"error type", &Classification{IsLead: true, Type: "error", Confidence: 0.9}, false},
		{"empty type", &Classification{IsLead: true, Confidence: 0.9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.IsValidLead(0.5))
		})
	}
}

func TestParseClassification(t *testing.T) {
	t.Run("fenced json", func(t *testing.T) {
		reply := "```json\n{\"is_lead\":true,\"opportunity_type\":\"Hiring\",\"opportunity_subtype\":\"backend\",\"confidence\":0.9,\"reasoning\":\"wants a dev\"}\n```"
		c, err := parseClassification(reply)
		require.NoError(t, err)
		assert.True(t, c.IsLead)
		assert.Equal(t, TypeHiring, c.Type)
		assert.Equal(t, "backend", c.Subtype)
		assert.Equal(t, 0.9, c.Confidence)
	})

	t.Run("prose around object", func(t *testing.T) {
		c, err := parseClassification(`Sure! {"is_lead":false,"opportunity_type":"other","confidence":1.7} Hope that helps`)
		require.NoError(t, err)
		assert.False(t, c.IsLead)
		assert.Equal(t, 1.0, c.Confidence, "confidence is clamped")
	})

	t.Run("garbage", func(t *testing.T) {
		c, err := parseClassification("I cannot answer that")
		assert.Error(t, err)
		require.NotNil(t, c)
		assert.Equal(t, TypeUnknown, c.Type)
		assert.False(t, c.IsValidLead(0))
	})

	t.Run("missing type", func(t *testing.T) {
		c, err := parseClassification(`{"is_lead":true,"confidence":0.8}`)
		require.NoError(t, err)
		assert.Equal(t, TypeUnknown, c.Type)
	})
}

func TestRuleClassifier_Classify(t *testing.T) {
	r := NewRuleClassifier()
	ctx := context.Background()

	t.Run("buyer with budget and urgency", func(t *testing.T) {
		c, err := r.Classify(ctx, "Looking for a Kubernetes consultant, budget $10k, need it ASAP", []string{"kubernetes"})
		require.NoError(t, err)
		assert.True(t, c.IsLead)
		assert.Equal(t, TypeConsulting, c.Type)
		assert.InDelta(t, 0.95, c.Confidence, 0.001)
		assert.True(t, c.IsValidLead(0.5))
	})

	t.Run("service provider", func(t *testing.T) {
		c, err := r.Classify(ctx, "I'm a freelance developer looking for clients, check out my portfolio", nil)
		require.NoError(t, err)
		assert.False(t, c.IsLead)
	})

	t.Run("no intent", func(t *testing.T) {
		c, err := r.Classify(ctx, "Just shipped my side thing", nil)
		require.NoError(t, err)
		assert.False(t, c.IsLead)
		assert.Equal(t, TypeOther, c.Type)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := r.Classify(cctx, "hiring now", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGuessType(t *testing.T) {
	assert.Equal(t, TypeSecurity, guessType("need a pentest before launch"))
	assert.Equal(t, TypeHiring, guessType("hiring a backend engineer"))
	assert.Equal(t, TypePartnership, guessType("seeking a technical co-founder"))
	assert.Equal(t, TypeOther, guessType("need a plumber"))
}
