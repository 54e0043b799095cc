package cli

import (
	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.BrainConfig

	QueryEngine core.QueryEngine
	Temporal    core.TemporalQuerier
	Recorder    core.EventRecorder
	Resolver    core.AliasResolver
	Entities    core.EntityReader

	// EventStore and StatsCalc are nil when the event log could not be opened.
	EventStore observability.EventStore
	StatsCalc  observability.StatsCalculator
)
