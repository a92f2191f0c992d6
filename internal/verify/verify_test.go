package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/internal/worker"
	"github.com/meridianfs/onboard/pkg/schema"
)

// providerFunc adapts a function to the Provider interface.
type providerFunc func(ctx context.Context, ref string, check CheckType, capture map[string]any) (*ProviderResult, error)

func (f providerFunc) Verify(ctx context.Context, ref string, check CheckType, capture map[string]any) (*ProviderResult, error) {
	return f(ctx, ref, check, capture)
}

// --- Identity sessions ---

func TestIdentity_SessionDefaults(t *testing.T) {
	eng := NewIdentityEngine(StaticProvider{}, nil, nil, nil)
	s, err := eng.CreateSession(context.Background(), "wf-1", "client-1", nil)
	require.NoError(t, err)

	assert.Equal(t, SessionPending, s.Status)
	assert.Equal(t, DefaultChecks, s.Checks)

	got, err := eng.GetByWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestIdentity_RunSessionGrading(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       SessionStatus
	}{
		{"high confidence passes", 95, SessionPassed},
		{"mid confidence needs review", 80, SessionReviewRequired},
		{"low confidence fails", 60, SessionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewIdentityEngine(StaticProvider{}, nil, nil, nil)
			s, err := eng.CreateSession(context.Background(), "wf-1", "client-1", nil)
			require.NoError(t, err)

			settled, err := eng.RunSession(context.Background(), s.ID,
				map[string]any{"confidence": tt.confidence})
			require.NoError(t, err)

			assert.Equal(t, tt.want, settled.Status)
			assert.Len(t, settled.Results, len(DefaultChecks))
			assert.NotNil(t, settled.CompletedAt)
		})
	}
}

func TestIdentity_AggregationOverMixedChecks(t *testing.T) {
	// One check needing review among passes sends the whole session to
	// review; a failure anywhere dominates.
	provider := providerFunc(func(_ context.Context, _ string, check CheckType, _ map[string]any) (*ProviderResult, error) {
		if check == CheckKBA {
			return &ProviderResult{Status: ResultReviewRequired, Confidence: 75}, nil
		}
		return &ProviderResult{Status: ResultPassed, Confidence: 95}, nil
	})

	eng := NewIdentityEngine(provider, nil, nil, nil)
	s, err := eng.CreateSession(context.Background(), "wf-1", "client-1", nil)
	require.NoError(t, err)

	settled, err := eng.RunSession(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, SessionReviewRequired, settled.Status)
	assert.Equal(t, ResultReviewRequired, settled.Result(CheckKBA).Status)
	assert.Equal(t, ResultPassed, settled.Result(CheckLiveness).Status)
}

func TestIdentity_SettledSessionRejectsRerun(t *testing.T) {
	eng := NewIdentityEngine(StaticProvider{}, nil, nil, nil)
	s, err := eng.CreateSession(context.Background(), "wf-1", "client-1", nil)
	require.NoError(t, err)

	_, err = eng.RunSession(context.Background(), s.ID, nil)
	require.NoError(t, err)

	_, err = eng.RunSession(context.Background(), s.ID, nil)
	require.Error(t, err)
	obErr, ok := err.(*schema.OnboardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, obErr.Code)
}

func TestIdentity_ProviderErrorSurfaces(t *testing.T) {
	provider := providerFunc(func(_ context.Context, _ string, _ CheckType, _ map[string]any) (*ProviderResult, error) {
		return nil, errors.New("vendor timeout")
	})
	eng := NewIdentityEngine(provider, nil, nil, nil)
	s, err := eng.CreateSession(context.Background(), "wf-1", "client-1", nil)
	require.NoError(t, err)

	_, err = eng.RunSession(context.Background(), s.ID, nil)
	require.Error(t, err)
	obErr, ok := err.(*schema.OnboardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExecution, obErr.Code)
}

// --- Document collection ---

func newDocEngine(p Provider) (*DocumentEngine, *worker.Pool) {
	pool := worker.NewPool(4)
	return NewDocumentEngine(p, pool, nil), pool
}

func TestDocuments_MissingByClientType(t *testing.T) {
	eng, pool := newDocEngine(StaticProvider{})
	defer pool.Close()
	ctx := context.Background()

	_, err := eng.Submit(ctx, "wf-1", DocPassport, "passport.jpg")
	require.NoError(t, err)

	missing := eng.MissingDocuments(ctx, "wf-1", schema.ClientTypeEntity)
	assert.ElementsMatch(t, []DocumentType{DocUtilityBill, DocFormation}, missing)

	missing = eng.MissingDocuments(ctx, "wf-1", schema.ClientTypeIndividual)
	assert.ElementsMatch(t, []DocumentType{DocUtilityBill}, missing)
}

func TestDocuments_BatchAllPass(t *testing.T) {
	eng, pool := newDocEngine(StaticProvider{})
	defer pool.Close()
	ctx := context.Background()

	_, err := eng.Submit(ctx, "wf-1", DocPassport, "passport.jpg")
	require.NoError(t, err)
	_, err = eng.Submit(ctx, "wf-1", DocUtilityBill, "bill.pdf")
	require.NoError(t, err)

	batch, err := eng.VerifyBatch(ctx, "wf-1", nil)
	require.NoError(t, err)

	assert.True(t, batch.Passed)
	assert.False(t, batch.HasFailures)
	assert.False(t, batch.RequiresReview)
	for _, d := range batch.Documents {
		assert.Equal(t, DocVerified, d.Status)
		require.NotNil(t, d.Result)
	}
}

func TestDocuments_BatchAggregatesAfterAllSettle(t *testing.T) {
	// One rejection and one review among many passes: both flags set, and
	// every document still carries its own settled result.
	outcomes := map[string]*ProviderResult{}
	provider := providerFunc(func(_ context.Context, ref string, _ CheckType, _ map[string]any) (*ProviderResult, error) {
		if r, ok := outcomes[ref]; ok {
			return r, nil
		}
		return &ProviderResult{Status: ResultPassed, Confidence: 95}, nil
	})

	eng, pool := newDocEngine(provider)
	defer pool.Close()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		d, err := eng.Submit(ctx, "wf-1", DocBankStatement, "stmt.pdf")
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}
	outcomes[ids[1]] = &ProviderResult{Status: ResultFailed, Confidence: 40}
	outcomes[ids[4]] = &ProviderResult{Status: ResultReviewRequired, Confidence: 75}

	batch, err := eng.VerifyBatch(ctx, "wf-1", nil)
	require.NoError(t, err)

	assert.True(t, batch.HasFailures)
	assert.True(t, batch.RequiresReview)
	assert.False(t, batch.Passed)

	byID := make(map[string]*Document)
	for _, d := range batch.Documents {
		require.NotNil(t, d.Result, d.ID)
		byID[d.ID] = d
	}
	assert.Equal(t, DocRejected, byID[ids[1]].Status)
	assert.Equal(t, DocReviewRequired, byID[ids[4]].Status)
	assert.Equal(t, DocVerified, byID[ids[0]].Status)
}

func TestDocuments_BatchWithoutDocuments(t *testing.T) {
	eng, pool := newDocEngine(StaticProvider{})
	defer pool.Close()

	_, err := eng.VerifyBatch(context.Background(), "wf-none", nil)
	require.Error(t, err)
	obErr, ok := err.(*schema.OnboardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, obErr.Code)
}

func TestDocuments_ProviderErrorFailsBatch(t *testing.T) {
	provider := providerFunc(func(_ context.Context, _ string, _ CheckType, _ map[string]any) (*ProviderResult, error) {
		return nil, errors.New("vendor down")
	})
	eng, pool := newDocEngine(provider)
	defer pool.Close()
	ctx := context.Background()

	_, err := eng.Submit(ctx, "wf-1", DocPassport, "passport.jpg")
	require.NoError(t, err)

	_, err = eng.VerifyBatch(ctx, "wf-1", nil)
	require.Error(t, err)
}
