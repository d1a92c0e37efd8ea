package plantmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantmesh/plantmesh/a2a"
	"github.com/plantmesh/plantmesh/audit"
	"github.com/plantmesh/plantmesh/config"
	"github.com/plantmesh/plantmesh/model"
	"github.com/plantmesh/plantmesh/workflow"
)

const agentsYAML = `
agents:
  - id: oee-agent
    trigger: oee
    publishes: [oee/updated]
  - id: quality-agent
    trigger: quality
    subscribes: [oee/updated]
`

func TestPlantMesh_DispatchThroughFacade(t *testing.T) {
	proc := model.NewMockProcessor()
	proc.AddResponse("oee-agent", "OEE at 91%")
	sink := audit.NewInMemorySink()

	mesh := New(func(o *Options) {
		o.Processor = proc
		o.Audit = sink
	})
	defer mesh.Close()

	agents, err := config.Parse([]byte(agentsYAML))
	require.NoError(t, err)
	mesh.LoadAgents(agents)

	res, err := mesh.Dispatch(context.Background(), "oee-agent", "report")
	require.NoError(t, err)
	assert.Equal(t, "OEE at 91%", res.Response)
	require.Len(t, res.Published, 1)

	// Manual dispatch plus the auto-triggered subscriber hop.
	assert.Len(t, proc.Calls(), 2)
	assert.Equal(t, 2, sink.Len())
}

func TestPlantMesh_OrderWorkflowThroughFacade(t *testing.T) {
	mesh := New()
	defer mesh.Close()

	c := mesh.Correlator()
	c.RegisterHandler(workflow.ServiceCompliance, func(_ context.Context, req a2a.Request) {
		_ = c.Resolve(req.RequestID, true, map[string]any{"response": "COMPLIANT"}, "")
	})
	c.RegisterHandler(workflow.ServiceStatus, func(_ context.Context, req a2a.Request) {
		_ = c.Resolve(req.RequestID, true, map[string]any{"response": "recorded"}, "")
	})

	wf, err := mesh.AnalyzeOrder(context.Background(), "PO-100")
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalApproved, wf.FinalStatus)
	require.Len(t, wf.Steps, 3)
	assert.Equal(t, workflow.StepSkipped, wf.Steps[1].Status)
}

func TestPlantMesh_RateLimitAppliesToDispatch(t *testing.T) {
	mesh := New(func(o *Options) {
		o.Processor = model.NewMockProcessor()
		o.MaxCalls = 1
		o.RateWindow = time.Minute
	})
	defer mesh.Close()

	agents, err := config.Parse([]byte(agentsYAML))
	require.NoError(t, err)
	mesh.LoadAgents(agents)

	_, err = mesh.Dispatch(context.Background(), "quality-agent", "first")
	require.NoError(t, err)

	_, err = mesh.Dispatch(context.Background(), "quality-agent", "second")
	assert.Error(t, err)
	assert.Equal(t, uint64(1), mesh.Limiter().Blocked())
}
