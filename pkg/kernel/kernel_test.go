package kernel

import (
	"testing"
	"time"

	"github.com/scrappyAI/toka/pkg/bus"
	"github.com/scrappyAI/toka/pkg/registry"
	"github.com/scrappyAI/toka/pkg/token"
	"github.com/scrappyAI/toka/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("kernel-test-secret")

func mintFor(t *testing.T, origin types.EntityId, permissions []string) string {
	t.Helper()
	tok, err := token.Mint(token.Claims{
		Subject:     origin.String(),
		Permissions: permissions,
		IssuedAt:    time.Now().Unix(),
		Expiry:      time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	require.NoError(t, err)
	return tok
}

func newTestKernel() (*Kernel, *bus.Bus) {
	b := bus.New()
	k := New(NewSingleSecretValidator(testSecret), registry.New(), b, NewMemoryWorldState())
	return k, b
}

func TestSubmit_CreateEntity(t *testing.T) {
	k, b := newTestKernel()
	sub := b.Subscribe()

	origin := types.NewEntityId()
	msg := types.Message{
		Origin:     origin,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpCreateEntity, Entity: origin},
	}

	event, err := k.Submit(msg)
	require.NoError(t, err)
	assert.Equal(t, types.EventEntityCreated, event.Kind)
	assert.Equal(t, origin, event.Entity)

	published, _, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, event, published)
}

func TestSubmit_WrongSubjectDenied(t *testing.T) {
	k, _ := newTestKernel()
	origin := types.NewEntityId()
	impersonated := types.NewEntityId()

	msg := types.Message{
		Origin:     impersonated,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpCreateEntity, Entity: impersonated},
	}

	_, err := k.Submit(msg)
	require.Error(t, err)
	var denied *CapabilityDenied
	require.ErrorAs(t, err, &denied)
}

func TestSubmit_WildcardPermissionBypassesSubjectMatch(t *testing.T) {
	k, _ := newTestKernel()
	minter := types.NewEntityId()
	target := types.NewEntityId()

	msg := types.Message{
		Origin:     target,
		Capability: mintFor(t, minter, []string{"*"}),
		Op:         types.Operation{Kind: types.OpCreateEntity, Entity: target},
	}

	event, err := k.Submit(msg)
	require.NoError(t, err)
	assert.Equal(t, types.EventEntityCreated, event.Kind)
}

func TestSubmit_InvalidTokenDenied(t *testing.T) {
	k, _ := newTestKernel()
	origin := types.NewEntityId()

	msg := types.Message{
		Origin:     origin,
		Capability: "not-a-jwt",
		Op:         types.Operation{Kind: types.OpCreateEntity, Entity: origin},
	}

	_, err := k.Submit(msg)
	require.Error(t, err)
	var denied *CapabilityDenied
	require.ErrorAs(t, err, &denied)
}

func TestSubmit_DeleteUnknownEntityIsInvalidOperation(t *testing.T) {
	k, _ := newTestKernel()
	origin := types.NewEntityId()

	msg := types.Message{
		Origin:     origin,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpDeleteEntity, Entity: origin},
	}

	_, err := k.Submit(msg)
	require.Error(t, err)
	var invalid *InvalidOperation
	require.ErrorAs(t, err, &invalid)
}

func TestSubmit_ExternalHandlerClaimsBeforeBuiltin(t *testing.T) {
	reg := registry.New()
	reg.Register("intercept", func(op *types.Operation, _ types.WorldState) (types.KernelEvent, bool, error) {
		if op.Kind == types.OpEmitEvent && op.Topic == "ext.test" {
			return types.KernelEvent{Kind: types.EventEmitted, Topic: "handled", Data: op.Data}, true, nil
		}
		return types.KernelEvent{}, false, nil
	})

	b := bus.New()
	k := New(NewSingleSecretValidator(testSecret), reg, b, NewMemoryWorldState())

	origin := types.NewEntityId()
	msg := types.Message{
		Origin:     origin,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpEmitEvent, Topic: "ext.test", Data: []byte("x")},
	}

	event, err := k.Submit(msg)
	require.NoError(t, err)
	assert.Equal(t, "handled", event.Topic)
}

func TestSubmit_HandlerPanicBecomesHandlerFailed(t *testing.T) {
	reg := registry.New()
	reg.Register("boom", func(op *types.Operation, _ types.WorldState) (types.KernelEvent, bool, error) {
		panic("kaboom")
	})

	b := bus.New()
	k := New(NewSingleSecretValidator(testSecret), reg, b, NewMemoryWorldState())

	origin := types.NewEntityId()
	msg := types.Message{
		Origin:     origin,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpEmitEvent, Topic: "x"},
	}

	_, err := k.Submit(msg)
	require.Error(t, err)
	var failed *HandlerFailed
	require.ErrorAs(t, err, &failed)
}

func TestSubmit_BatchNonAtomic(t *testing.T) {
	k, _ := newTestKernel()

	ok1 := types.NewEntityId()
	bad := types.NewEntityId()

	batchOrigin := types.NewEntityId()
	msg := types.Message{
		Origin:     batchOrigin,
		Capability: mintFor(t, batchOrigin, []string{"*"}),
		Op: types.Operation{
			Kind: types.OpSubmitBatch,
			Batch: []types.Message{
				{Origin: ok1, Capability: mintFor(t, ok1, nil), Op: types.Operation{Kind: types.OpCreateEntity, Entity: ok1}},
				{Origin: bad, Capability: mintFor(t, bad, nil), Op: types.Operation{Kind: types.OpDeleteEntity, Entity: bad}},
			},
		},
	}

	_, err := k.Submit(msg)
	require.Error(t, err)

	assert.True(t, k.state.HasEntity(ok1), "earlier successes in a non-atomic batch must remain applied")
}

func TestSubmit_GrantAndRevokeCapability(t *testing.T) {
	k, _ := newTestKernel()
	origin := types.NewEntityId()
	grantee := types.NewEntityId()

	grant := types.Message{
		Origin:     origin,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpGrantCapability, Grantee: grantee, Permissions: []string{"read"}},
	}
	event, err := k.Submit(grant)
	require.NoError(t, err)
	assert.Equal(t, types.EventCapabilityGranted, event.Kind)

	revoke := types.Message{
		Origin:     origin,
		Capability: mintFor(t, origin, nil),
		Op:         types.Operation{Kind: types.OpRevokeCapability, Grantee: grantee},
	}
	event, err = k.Submit(revoke)
	require.NoError(t, err)
	assert.Equal(t, types.EventCapabilityRevoked, event.Kind)
}
